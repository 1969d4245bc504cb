// Package secretstore resolves notification credentials from AWS Secrets Manager.
package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/core"
	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
)

// API is the subset of the Secrets Manager client used here.
type API interface {
	GetSecretValue(
		ctx context.Context,
		in *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

var _ API = (*secretsmanager.Client)(nil)

var errSecretEmpty = errors.New("secret has no value")

// Store implements core.SecretStore.
type Store struct {
	api API
}

var _ core.SecretStore = (*Store)(nil)

// New wraps a Secrets Manager client.
func New(api API) *Store {
	return &Store{api: api}
}

// GetSecret returns the current string value of the secret.
func (s *Store) GetSecret(ctx context.Context, id string) (string, error) {
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return "", fmt.Errorf("get secret %q: %w", id, apperrors.MapAWSError(err))
	}
	if out.SecretString != nil {
		return *out.SecretString, nil
	}
	if len(out.SecretBinary) > 0 {
		return string(out.SecretBinary), nil
	}
	return "", fmt.Errorf("secret %q: %w", id, errSecretEmpty)
}
