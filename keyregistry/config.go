// Package keyregistry manages the view key material the indexing engine
// decrypts records with. Key bytes live in a pluggable secrets backend and are
// loaded once at startup; the registry never persists plaintext key material
// into the index store.
package keyregistry

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/veilbridge/ledger-infrastructure/common"
)

type ManagerType string

const (
	// Local on-disk backend, for development and single-node deployments
	Local ManagerType = "local"

	// HashiCorp Vault KV v2 backend
	HashicorpVault ManagerType = "hashicorp-vault"

	// AWS Systems Manager Parameter Store backend
	AWSSSM ManagerType = "aws-ssm"

	// GCP Secret Manager backend
	GCPSSM ManagerType = "gcp-ssm"
)

// ViewKeyPrefix namespaces view key secrets inside the backend.
const ViewKeyPrefix = "viewkey_"

// ViewKeySecretName builds the backend secret name for a key identifier.
func ViewKeySecretName(keyID string) string {
	return ViewKeyPrefix + keyID
}

var ErrSecretNotFound = errors.New("secret not found")

// Manager is the backend boundary for key material storage.
type Manager interface {
	Setup() error
	GetSecret(name string) ([]byte, error)
	SetSecret(name string, value []byte) error
	HasSecret(name string) bool
	RemoveSecret(name string) error
}

// ManagerConfig is the configuration that gets
// written to a single configuration file
type ManagerConfig struct {
	Token     string                 `json:"token"`      // Access token to the instance
	ServerURL string                 `json:"server_url"` // The URL of the running server
	Type      ManagerType            `json:"type"`       // The type of Manager
	Name      string                 `json:"name"`       // The name of the current service
	Namespace string                 `json:"namespace"`  // The namespace of the service
	Path      string                 `json:"path"`
	Extra     map[string]interface{} `json:"extra"` // Any kind of arbitrary data
}

// WriteConfig writes the current configuration to the specified path
func (c *ManagerConfig) WriteConfig(path string) error {
	jsonBytes, err := json.MarshalIndent(c, "", " ")
	if err != nil {
		return err
	}

	return common.SaveFileSafe(path, jsonBytes, 0660)
}

// ReadConfig reads the ManagerConfig from the specified path
func ReadConfig(path string) (*ManagerConfig, error) {
	configFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &ManagerConfig{}

	if err := json.Unmarshal(configFile, &config); err != nil {
		return nil, err
	}

	return config, nil
}
