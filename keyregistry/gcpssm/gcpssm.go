package gcpssm

import (
	"context"
	"errors"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/hashicorp/go-hclog"
	"github.com/veilbridge/ledger-infrastructure/keyregistry"
)

// GCPManager keeps key material in GCP Secret Manager, one secret per key
// with a single latest version.
type GCPManager struct {
	logger hclog.Logger

	projectID string

	client *secretmanager.Client
	ctx    context.Context
}

// ManagerFactory implements the factory method
func ManagerFactory(
	config *keyregistry.ManagerConfig, logger hclog.Logger,
) (keyregistry.Manager, error) {
	projectID, ok := config.Extra["project-id"].(string)
	if !ok || projectID == "" {
		return nil, errors.New("no project id specified for gcp key manager")
	}

	gcpManager := &GCPManager{
		logger:    logger.Named("gcp-ssm"),
		projectID: projectID,
		ctx:       context.Background(),
	}

	if err := gcpManager.Setup(); err != nil {
		return nil, err
	}

	return gcpManager, nil
}

// Setup initializes the secret manager client using ambient credentials
func (g *GCPManager) Setup() error {
	client, err := secretmanager.NewClient(g.ctx)
	if err != nil {
		return fmt.Errorf("unable to initialize gcp secret manager client, %w", err)
	}

	g.client = client

	return nil
}

func (g *GCPManager) secretParent() string {
	return fmt.Sprintf("projects/%s", g.projectID)
}

func (g *GCPManager) secretVersionName(name string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", g.projectID, name)
}

// GetSecret fetches the latest version of the secret
func (g *GCPManager) GetSecret(name string) ([]byte, error) {
	result, err := g.client.AccessSecretVersion(g.ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: g.secretVersionName(name),
	})
	if err != nil {
		return nil, keyregistry.ErrSecretNotFound
	}

	return result.Payload.Data, nil
}

// SetSecret creates the secret and adds the value as its first version
func (g *GCPManager) SetSecret(name string, value []byte) error {
	secret, err := g.client.CreateSecret(g.ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   g.secretParent(),
		SecretId: name,
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("unable to create gcp secret, %w", err)
	}

	_, err = g.client.AddSecretVersion(g.ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent: secret.Name,
		Payload: &secretmanagerpb.SecretPayload{
			Data: value,
		},
	})
	if err != nil {
		return fmt.Errorf("unable to store gcp secret version, %w", err)
	}

	return nil
}

// HasSecret checks if the secret is present
func (g *GCPManager) HasSecret(name string) bool {
	_, err := g.GetSecret(name)

	return err == nil
}

// RemoveSecret removes the secret with all its versions
func (g *GCPManager) RemoveSecret(name string) error {
	if !g.HasSecret(name) {
		return keyregistry.ErrSecretNotFound
	}

	err := g.client.DeleteSecret(g.ctx, &secretmanagerpb.DeleteSecretRequest{
		Name: fmt.Sprintf("%s/secrets/%s", g.secretParent(), name),
	})
	if err != nil {
		return fmt.Errorf("unable to delete gcp secret, %w", err)
	}

	return nil
}
