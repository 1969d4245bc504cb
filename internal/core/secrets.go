package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SecretRefPrefix marks a configuration value that names a secret instead of holding it.
const SecretRefPrefix = "secretsmanager:"

// SecretStore fetches secret values by id or ARN.
type SecretStore interface {
	GetSecret(ctx context.Context, id string) (string, error)
}

// ResolveSecretRef returns value unchanged unless it starts with SecretRefPrefix,
// in which case the named secret is fetched from store.
func ResolveSecretRef(ctx context.Context, store SecretStore, value string) (string, error) {
	id, ok := strings.CutPrefix(strings.TrimSpace(value), SecretRefPrefix)
	if !ok {
		return value, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("secret reference has no id")
	}
	if store == nil {
		return "", errors.New("secret store not configured")
	}
	secret, err := store.GetSecret(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolve secret %q: %w", id, err)
	}
	return strings.TrimSpace(secret), nil
}

// ResolveSecretRefs resolves each pointer in place, stopping at the first failure.
func ResolveSecretRefs(ctx context.Context, store SecretStore, values ...*string) error {
	for _, v := range values {
		if v == nil || *v == "" {
			continue
		}
		resolved, err := ResolveSecretRef(ctx, store, *v)
		if err != nil {
			return err
		}
		*v = resolved
	}
	return nil
}

// HasSecretRef reports whether any value needs a SecretStore to resolve.
func HasSecretRef(values ...string) bool {
	for _, v := range values {
		if strings.HasPrefix(strings.TrimSpace(v), SecretRefPrefix) {
			return true
		}
	}
	return false
}
