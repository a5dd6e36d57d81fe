// Package aws wraps the AWS SDK clients used by the trust engine.
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"

	"github.com/cyphera/trust-engine/internal/logger"
)

// SecretsManagerClient wraps the AWS Secrets Manager client.
type SecretsManagerClient struct {
	svc *secretsmanager.Client
}

// NewSecretsManagerClient creates a Secrets Manager client from the default
// AWS configuration chain (environment, shared config, IAM role).
func NewSecretsManagerClient(ctx context.Context) (*SecretsManagerClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	return &SecretsManagerClient{svc: secretsmanager.NewFromConfig(cfg)}, nil
}

// GetSecretString fetches a secret using the ARN named by secretArnEnvVar,
// falling back to the value of fallbackEnvVar when the ARN is unset or the
// fetch fails. Used for the envelope signing secret and API signing keys.
func (c *SecretsManagerClient) GetSecretString(ctx context.Context, secretArnEnvVar, fallbackEnvVar string) (string, error) {
	if secretArn := os.Getenv(secretArnEnvVar); secretArn != "" {
		result, err := c.svc.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretArn),
		})
		if err == nil && result.SecretString != nil && *result.SecretString != "" {
			return *result.SecretString, nil
		}
		logger.Log.Warn("Failed to retrieve secret from Secrets Manager, falling back to env var",
			zap.String("secretArnEnvVar", secretArnEnvVar),
			zap.String("fallbackEnvVar", fallbackEnvVar),
			zap.Error(err),
		)
	}

	if value := os.Getenv(fallbackEnvVar); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret not found using ARN env var '%s' or direct env var '%s'", secretArnEnvVar, fallbackEnvVar)
}

// DatabaseCredentials is the JSON shape RDS-managed secrets are stored in.
type DatabaseCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"dbname"`
}

// DSN renders the credentials as a pgx connection string.
func (d *DatabaseCredentials) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.Username, d.Password, d.Host, d.Port, d.DBName)
}

// GetDatabaseCredentials fetches and parses the RDS-managed database secret.
// There is no plain-env fallback for structured credentials; local runs pass
// DATABASE_URL instead and skip this path entirely.
func (c *SecretsManagerClient) GetDatabaseCredentials(ctx context.Context, secretArnEnvVar string) (*DatabaseCredentials, error) {
	secretArn := os.Getenv(secretArnEnvVar)
	if secretArn == "" {
		return nil, fmt.Errorf("database secret ARN env var '%s' is not set", secretArnEnvVar)
	}

	result, err := c.svc.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretArn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch database secret: %w", err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("database secret %s has no string value", secretArn)
	}

	var creds DatabaseCredentials
	if err := json.Unmarshal([]byte(*result.SecretString), &creds); err != nil {
		return nil, fmt.Errorf("failed to parse database secret: %w", err)
	}
	return &creds, nil
}
