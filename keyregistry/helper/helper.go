package helper

import (
	"errors"

	"github.com/hashicorp/go-hclog"
	"github.com/veilbridge/ledger-infrastructure/keyregistry"
	"github.com/veilbridge/ledger-infrastructure/keyregistry/awsssm"
	"github.com/veilbridge/ledger-infrastructure/keyregistry/gcpssm"
	"github.com/veilbridge/ledger-infrastructure/keyregistry/hashicorpvault"
	"github.com/veilbridge/ledger-infrastructure/keyregistry/local"
)

// SetupLocalKeyManager is a helper method for boilerplate local key manager setup
func SetupLocalKeyManager(dataDir string) (keyregistry.Manager, error) {
	return local.ManagerFactory(&keyregistry.ManagerConfig{
		Path: dataDir,
	})
}

// InitKeyManager returns the key manager from the provided config
func InitKeyManager(
	config *keyregistry.ManagerConfig, logger hclog.Logger,
) (keyregistry.Manager, error) {
	switch config.Type {
	case keyregistry.Local:
		return local.ManagerFactory(config)
	case keyregistry.HashicorpVault:
		return hashicorpvault.ManagerFactory(config, logger)
	case keyregistry.AWSSSM:
		return awsssm.ManagerFactory(config, logger)
	case keyregistry.GCPSSM:
		return gcpssm.ManagerFactory(config, logger)
	default:
		return nil, errors.New("unsupported key manager type")
	}
}
