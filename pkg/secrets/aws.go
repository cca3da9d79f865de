package secrets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// AWSProvider reads secrets from AWS Secrets Manager, the key is the secret id
type AWSProvider struct {
	client secretsManager
}

type secretsManager interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewAWSProvider makes secrets manager client. Static credentials are used if access key is set,
// otherwise the default aws credentials chain.
func NewAWSProvider(ctx context.Context, accessKeyID, secretAccessKey, region string) (*AWSProvider, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("can't make aws config: %w", err)
	}
	return &AWSProvider{client: secretsmanager.NewFromConfig(cfg)}, nil
}

// Get returns the string value of the secret
func (p *AWSProvider) Get(ctx context.Context, key string) (string, error) {
	res, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &key})
	if err != nil {
		return "", fmt.Errorf("can't read aws secret %q: %w", key, err)
	}
	if res.SecretString == nil {
		return "", fmt.Errorf("aws secret %q has no string value", key)
	}
	return *res.SecretString, nil
}
