package awsssm

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/hashicorp/go-hclog"
	"github.com/veilbridge/ledger-infrastructure/keyregistry"
)

// AwsSsmManager keeps key material in AWS Systems Manager Parameter Store
// as SecureString parameters.
type AwsSsmManager struct {
	logger hclog.Logger

	region string

	// Path under which the parameters are stored, e.g. /veilbridge/prod
	ssmPath string

	client *ssm.SSM
}

// ManagerFactory implements the factory method
func ManagerFactory(
	config *keyregistry.ManagerConfig, logger hclog.Logger,
) (keyregistry.Manager, error) {
	region, ok := config.Extra["region"].(string)
	if !ok || region == "" {
		return nil, errors.New("no region specified for aws ssm key manager")
	}

	ssmPath, ok := config.Extra["ssm-parameter-path"].(string)
	if !ok || ssmPath == "" {
		return nil, errors.New("no parameter path specified for aws ssm key manager")
	}

	awsSsmManager := &AwsSsmManager{
		logger:  logger.Named("aws-ssm"),
		region:  region,
		ssmPath: ssmPath,
	}

	if err := awsSsmManager.Setup(); err != nil {
		return nil, err
	}

	return awsSsmManager, nil
}

// Setup initializes the SSM client
func (a *AwsSsmManager) Setup() error {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(a.region),
	})
	if err != nil {
		return fmt.Errorf("unable to initialize aws session, %w", err)
	}

	a.client = ssm.New(sess)

	return nil
}

func (a *AwsSsmManager) constructSecretPath(name string) string {
	return fmt.Sprintf("%s/%s", a.ssmPath, name)
}

// GetSecret fetches the secret from the parameter store
func (a *AwsSsmManager) GetSecret(name string) ([]byte, error) {
	param, err := a.client.GetParameter(&ssm.GetParameterInput{
		Name:           aws.String(a.constructSecretPath(name)),
		WithDecryption: aws.Bool(true),
	})
	if err != nil || param == nil {
		return nil, keyregistry.ErrSecretNotFound
	}

	return []byte(*param.Parameter.Value), nil
}

// SetSecret saves the secret as a SecureString parameter
func (a *AwsSsmManager) SetSecret(name string, value []byte) error {
	_, err := a.client.PutParameter(&ssm.PutParameterInput{
		Name:      aws.String(a.constructSecretPath(name)),
		Value:     aws.String(string(value)),
		Type:      aws.String(ssm.ParameterTypeSecureString),
		Overwrite: aws.Bool(false),
	})
	if err != nil {
		return fmt.Errorf("unable to store secret to aws ssm, %w", err)
	}

	return nil
}

// HasSecret checks if the secret is present in the parameter store
func (a *AwsSsmManager) HasSecret(name string) bool {
	_, err := a.GetSecret(name)

	return err == nil
}

// RemoveSecret removes the secret from the parameter store
func (a *AwsSsmManager) RemoveSecret(name string) error {
	if !a.HasSecret(name) {
		return keyregistry.ErrSecretNotFound
	}

	_, err := a.client.DeleteParameter(&ssm.DeleteParameterInput{
		Name: aws.String(a.constructSecretPath(name)),
	})
	if err != nil {
		return fmt.Errorf("unable to delete secret from aws ssm, %w", err)
	}

	return nil
}
