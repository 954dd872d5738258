package hashicorpvault

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/vault/api"
	"github.com/veilbridge/ledger-infrastructure/keyregistry"
)

// VaultManager keeps key material in a HashiCorp Vault KV v2 mount.
type VaultManager struct {
	logger hclog.Logger

	token     string
	serverURL string
	name      string
	namespace string
	basePath  string

	client *api.Client
}

// ManagerFactory implements the factory method
func ManagerFactory(
	config *keyregistry.ManagerConfig, logger hclog.Logger,
) (keyregistry.Manager, error) {
	if config.Token == "" {
		return nil, errors.New("no token specified for vault key manager")
	}

	if config.ServerURL == "" {
		return nil, errors.New("no server url specified for vault key manager")
	}

	if config.Name == "" {
		return nil, errors.New("no name specified for vault key manager")
	}

	vaultManager := &VaultManager{
		logger:    logger.Named("vault"),
		token:     config.Token,
		serverURL: config.ServerURL,
		name:      config.Name,
		namespace: config.Namespace,
		basePath:  fmt.Sprintf("secret/data/%s", config.Name),
	}

	if err := vaultManager.Setup(); err != nil {
		return nil, err
	}

	return vaultManager, nil
}

// Setup initializes the Vault API client
func (v *VaultManager) Setup() error {
	clientConfig := api.DefaultConfig()
	clientConfig.Address = v.serverURL

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return fmt.Errorf("unable to initialize vault client, %w", err)
	}

	client.SetNamespace(v.namespace)
	client.SetToken(v.token)

	v.client = client

	return nil
}

func (v *VaultManager) constructSecretPath(name string) string {
	return fmt.Sprintf("%s/%s", v.basePath, name)
}

// GetSecret fetches the secret from the Vault server
func (v *VaultManager) GetSecret(name string) ([]byte, error) {
	secret, err := v.client.Logical().Read(v.constructSecretPath(name))
	if err != nil {
		return nil, fmt.Errorf("unable to read secret from vault, %w", err)
	}

	if secret == nil {
		return nil, keyregistry.ErrSecretNotFound
	}

	// KV v2 wraps the values into an additional data map
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unable to assert vault data for secret %s", name)
	}

	value, ok := data[name].(string)
	if !ok {
		return nil, keyregistry.ErrSecretNotFound
	}

	return []byte(value), nil
}

// SetSecret saves the secret to the Vault server
func (v *VaultManager) SetSecret(name string, value []byte) error {
	_, err := v.client.Logical().Write(v.constructSecretPath(name), map[string]interface{}{
		"data": map[string]interface{}{
			name: string(value),
		},
	})
	if err != nil {
		return fmt.Errorf("unable to store secret to vault, %w", err)
	}

	return nil
}

// HasSecret checks if the secret is present on the Vault server
func (v *VaultManager) HasSecret(name string) bool {
	_, err := v.GetSecret(name)

	return err == nil
}

// RemoveSecret removes the secret from the Vault server
func (v *VaultManager) RemoveSecret(name string) error {
	if !v.HasSecret(name) {
		return keyregistry.ErrSecretNotFound
	}

	_, err := v.client.Logical().Delete(v.constructSecretPath(name))
	if err != nil {
		return fmt.Errorf("unable to delete secret from vault, %w", err)
	}

	return nil
}
