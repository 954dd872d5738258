package common

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
)

// CreateDirSafe creates a directory at path with perms level permissions.
// If the directory already exists, owner and permissions are verified.
func CreateDirSafe(path string, perms fs.FileMode) error {
	info, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if !DirectoryExists(path) {
		return os.MkdirAll(path, perms)
	}

	return verifyFileOwnerAndPermissions(path, info, perms)
}

// SaveFileSafe creates a file at path with perms level permissions.
// If the file already exists, owner and permissions are verified,
// and the file is overwritten.
func SaveFileSafe(path string, data []byte, perms fs.FileMode) error {
	info, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if FileExists(path) {
		if err := verifyFileOwnerAndPermissions(path, info, perms); err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, perms)
}

// Verifies that the file owner is the current user,
// or the file owner is in the same group as current user
// and permissions are set correctly by the owner.
func verifyFileOwnerAndPermissions(path string, info fs.FileInfo, expectedPerms fs.FileMode) error {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if stat == nil || !ok {
		return fmt.Errorf("failed to get stats of %s", path)
	}

	currUser, err := user.Current()
	if err != nil {
		return fmt.Errorf("failed to get current user")
	}

	ownerUID := strconv.FormatUint(uint64(stat.Uid), 10)
	if currUser.Uid == ownerUID {
		return nil
	}

	ownerGID := strconv.FormatUint(uint64(stat.Gid), 10)
	if currUser.Gid != ownerGID {
		return fmt.Errorf("file/directory created by a user from a different group: %s", path)
	}

	if info.Mode() != expectedPerms {
		return fmt.Errorf("permissions of the file/directory '%s' are set incorrectly by another user", path)
	}

	return nil
}

// DirectoryExists checks if the directory at the specified path exists
func DirectoryExists(directoryPath string) bool {
	if directoryPath == "" {
		return false
	}

	pathAbs, err := filepath.Abs(directoryPath)
	if err != nil {
		return false
	}

	fileInfo, statErr := os.Stat(pathAbs)

	return !os.IsNotExist(statErr) && (fileInfo == nil || fileInfo.IsDir())
}

// FileExists checks if the file at the specified path exists
func FileExists(filePath string) bool {
	if filePath == "" {
		return false
	}

	pathAbs, err := filepath.Abs(filePath)
	if err != nil {
		return false
	}

	fileInfo, statErr := os.Stat(pathAbs)

	return !os.IsNotExist(statErr) && (fileInfo == nil || !fileInfo.IsDir())
}
