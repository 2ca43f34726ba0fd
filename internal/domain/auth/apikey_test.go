package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKeyRepo struct {
	keys map[string]*APIKeyInfo
}

func (m *mockKeyRepo) FindByHash(_ context.Context, hash string) (*APIKeyInfo, error) {
	info, ok := m.keys[hash]
	if !ok {
		return nil, ErrUnauthorized
	}
	return info, nil
}

func TestKeyChecker(t *testing.T) {
	pepper := []byte("pepper")
	hash := HashAPIKey(pepper, "staffkey")
	repo := &mockKeyRepo{keys: map[string]*APIKeyInfo{
		hash: {ID: "k1", KeyHash: hash, Name: "backoffice", Scopes: []string{"sales:read"}},
	}}
	checker := NewKeyChecker(repo, pepper)

	info, err := checker.Check(context.Background(), "staffkey")
	require.NoError(t, err)
	assert.Equal(t, "backoffice", info.Name)

	for _, key := range []string{"", "wrong"} {
		_, err := checker.Check(context.Background(), key)
		require.ErrorIs(t, err, ErrUnauthorized)
	}

	_, err = NewKeyChecker(repo, []byte("other")).Check(context.Background(), "staffkey")
	require.ErrorIs(t, err, ErrUnauthorized)
}
