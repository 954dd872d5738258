package local

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilbridge/ledger-infrastructure/keyregistry"
)

func TestLocalManagerFactory(t *testing.T) {
	testTable := []struct {
		name          string
		config        *keyregistry.ManagerConfig
		shouldSucceed bool
	}{
		{
			"Valid configuration with path info",
			&keyregistry.ManagerConfig{
				Path: t.TempDir(),
			},
			true,
		},
		{
			"Invalid configuration without path info",
			&keyregistry.ManagerConfig{
				Path: "",
			},
			false,
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			localManager, factoryErr := ManagerFactory(testCase.config)
			if testCase.shouldSucceed {
				assert.NotNil(t, localManager)
				assert.NoError(t, factoryErr)
			} else {
				assert.Nil(t, localManager)
				assert.Error(t, factoryErr)
			}
		})
	}
}

func TestLocalManager_GetSetRemoveSecret(t *testing.T) {
	secretName := keyregistry.ViewKeySecretName("key-1")
	secretValue := []byte("aabbcc")

	manager, err := ManagerFactory(&keyregistry.ManagerConfig{
		Path: t.TempDir(),
	})
	require.NoError(t, err)

	require.False(t, manager.HasSecret(secretName))

	_, err = manager.GetSecret(secretName)
	require.ErrorIs(t, err, keyregistry.ErrSecretNotFound)

	require.NoError(t, manager.SetSecret(secretName, secretValue))
	require.True(t, manager.HasSecret(secretName))

	value, err := manager.GetSecret(secretName)
	require.NoError(t, err)
	require.Equal(t, secretValue, value)

	// a second write must not overwrite existing key material
	require.Error(t, manager.SetSecret(secretName, []byte("other")))

	require.NoError(t, manager.RemoveSecret(secretName))
	require.False(t, manager.HasSecret(secretName))

	require.ErrorIs(t, manager.RemoveSecret(secretName), keyregistry.ErrSecretNotFound)
}
