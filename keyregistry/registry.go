package keyregistry

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/veilbridge/ledger-infrastructure/records"
)

// Registry loads view keys out of a secrets backend. Key material is stored
// hex encoded so every backend can treat it as text.
type Registry struct {
	manager Manager
	logger  hclog.Logger
}

func NewRegistry(manager Manager, logger hclog.Logger) *Registry {
	return &Registry{
		manager: manager,
		logger:  logger,
	}
}

// LoadViewKeys resolves the configured key identifiers into usable view keys.
// A missing or malformed secret fails the whole load: starting to index with a
// partial key set would silently misclassify owned records as foreign.
func (r *Registry) LoadViewKeys(keyIDs []string) ([]*records.ViewKey, error) {
	keys := make([]*records.ViewKey, 0, len(keyIDs))

	for _, keyID := range keyIDs {
		secret, err := r.manager.GetSecret(ViewKeySecretName(keyID))
		if err != nil {
			return nil, fmt.Errorf("view key %s: %w", keyID, err)
		}

		material, err := hex.DecodeString(strings.TrimSpace(string(secret)))
		if err != nil {
			return nil, fmt.Errorf("view key %s is not valid hex: %w", keyID, err)
		}

		key, err := records.NewViewKey(keyID, material)
		if err != nil {
			return nil, fmt.Errorf("view key %s: %w", keyID, err)
		}

		keys = append(keys, key)

		r.logger.Info("Loaded view key", "keyId", keyID)
	}

	return keys, nil
}

// StoreViewKey writes key material into the backend under the registry naming
// scheme. Fails if the key already exists.
func (r *Registry) StoreViewKey(keyID string, material []byte) error {
	if len(material) != records.KeySize {
		return fmt.Errorf("view key %s has invalid length %d", keyID, len(material))
	}

	encoded := []byte(hex.EncodeToString(material))

	return r.manager.SetSecret(ViewKeySecretName(keyID), encoded)
}
