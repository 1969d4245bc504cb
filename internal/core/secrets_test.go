package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSecretStore struct {
	values map[string]string
	err    error
	calls  []string
}

func (s *stubSecretStore) GetSecret(_ context.Context, id string) (string, error) {
	s.calls = append(s.calls, id)
	if s.err != nil {
		return "", s.err
	}
	v, ok := s.values[id]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestResolveSecretRef(t *testing.T) {
	ctx := context.Background()

	t.Run("plain value passes through", func(t *testing.T) {
		out, err := ResolveSecretRef(ctx, nil, "https://hooks.slack.test/abc")
		require.NoError(t, err)
		assert.Equal(t, "https://hooks.slack.test/abc", out)
	})

	t.Run("reference is fetched", func(t *testing.T) {
		store := &stubSecretStore{values: map[string]string{"etl/pagerduty": "rk-123\n"}}
		out, err := ResolveSecretRef(ctx, store, "secretsmanager:etl/pagerduty")
		require.NoError(t, err)
		assert.Equal(t, "rk-123", out)
		assert.Equal(t, []string{"etl/pagerduty"}, store.calls)
	})

	t.Run("store error propagates", func(t *testing.T) {
		store := &stubSecretStore{err: errors.New("boom")}
		_, err := ResolveSecretRef(ctx, store, "secretsmanager:x")
		require.Error(t, err)
	})

	t.Run("reference without store", func(t *testing.T) {
		_, err := ResolveSecretRef(ctx, nil, "secretsmanager:x")
		require.Error(t, err)
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := ResolveSecretRef(ctx, &stubSecretStore{}, "secretsmanager: ")
		require.Error(t, err)
	})
}

func TestResolveSecretRefs(t *testing.T) {
	store := &stubSecretStore{values: map[string]string{"hook": "https://hooks.slack.test/x"}}
	webhook := "secretsmanager:hook"
	routing := "plain-key"
	empty := ""

	require.NoError(t, ResolveSecretRefs(context.Background(), store, &webhook, &routing, &empty, nil))
	assert.Equal(t, "https://hooks.slack.test/x", webhook)
	assert.Equal(t, "plain-key", routing)
	assert.True(t, HasSecretRef("a", "secretsmanager:b"))
	assert.False(t, HasSecretRef("a", ""))
}
