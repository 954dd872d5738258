package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/veilbridge/ledger-infrastructure/common"
	"github.com/veilbridge/ledger-infrastructure/keyregistry"
)

const keysFolder = "keys"

// LocalManager stores key material on disk, one file per secret,
// under <path>/keys/<name>.key with restrictive permissions.
type LocalManager struct {
	// Path to the base working directory
	path string

	// Mux for file operations
	fileLock sync.Mutex
}

// ManagerFactory implements the factory method
func ManagerFactory(config *keyregistry.ManagerConfig) (keyregistry.Manager, error) {
	if config.Path == "" {
		return nil, errors.New("no path specified for local key manager")
	}

	localManager := &LocalManager{
		path: config.Path,
	}

	if err := localManager.Setup(); err != nil {
		return nil, err
	}

	return localManager, nil
}

// Setup creates the on-disk directory layout
func (l *LocalManager) Setup() error {
	if err := common.CreateDirSafe(filepath.Join(l.path, keysFolder), 0750); err != nil {
		return fmt.Errorf("unable to create keys directory, %w", err)
	}

	return nil
}

// GetSecret reads the secret from disk
func (l *LocalManager) GetSecret(name string) ([]byte, error) {
	secretPath := l.secretPath(name)

	if !common.FileExists(secretPath) {
		return nil, keyregistry.ErrSecretNotFound
	}

	secret, err := os.ReadFile(secretPath)
	if err != nil {
		return nil, fmt.Errorf(
			"unable to read secret from disk (%s), %w",
			secretPath,
			err,
		)
	}

	return secret, nil
}

// SetSecret saves the secret to disk
func (l *LocalManager) SetSecret(name string, value []byte) error {
	l.fileLock.Lock()
	defer l.fileLock.Unlock()

	secretPath := l.secretPath(name)

	if common.FileExists(secretPath) {
		return fmt.Errorf("%s already initialized", secretPath)
	}

	if err := common.SaveFileSafe(secretPath, value, 0440); err != nil {
		return fmt.Errorf(
			"unable to write secret to disk (%s), %w",
			secretPath,
			err,
		)
	}

	return nil
}

// HasSecret checks if the secret is present on disk
func (l *LocalManager) HasSecret(name string) bool {
	return common.FileExists(l.secretPath(name))
}

// RemoveSecret removes the secret from disk
func (l *LocalManager) RemoveSecret(name string) error {
	l.fileLock.Lock()
	defer l.fileLock.Unlock()

	secretPath := l.secretPath(name)

	if !common.FileExists(secretPath) {
		return keyregistry.ErrSecretNotFound
	}

	if err := os.Remove(secretPath); err != nil {
		return fmt.Errorf("unable to remove secret, %w", err)
	}

	return nil
}

func (l *LocalManager) secretPath(name string) string {
	return filepath.Join(l.path, keysFolder, name+".key")
}
