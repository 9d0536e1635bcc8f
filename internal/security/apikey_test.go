package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyHasherRequiresSecret(t *testing.T) {
	t.Setenv("WAINBOX_API_SECRET", "")

	_, err := NewKeyHasher()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WAINBOX_API_SECRET")
}

func TestNewKeyHasherRejectsShortSecret(t *testing.T) {
	t.Setenv("WAINBOX_API_SECRET", "too-short")

	_, err := NewKeyHasher()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 16 characters")
}

func TestNewKeyHasherFromEnvironment(t *testing.T) {
	t.Setenv("WAINBOX_API_SECRET", "a-deployment-secret-value")

	hasher, err := NewKeyHasher()
	require.NoError(t, err)

	same := NewKeyHasherWithSecret("a-deployment-secret-value")
	assert.Equal(t, same.Hash("key-1"), hasher.Hash("key-1"))
}

func TestHashIsDeterministic(t *testing.T) {
	hasher := NewKeyHasherWithSecret("a-deployment-secret-value")

	first := hasher.Hash("workspace-api-key")
	second := hasher.Hash("workspace-api-key")
	assert.Equal(t, first, second)
	assert.Len(t, first, 64, "hex-encoded SHA-256")
}

func TestHashDiffersPerKeyAndSecret(t *testing.T) {
	hasher := NewKeyHasherWithSecret("a-deployment-secret-value")

	assert.NotEqual(t, hasher.Hash("key-1"), hasher.Hash("key-2"))

	other := NewKeyHasherWithSecret("a-different-secret-value")
	assert.NotEqual(t, hasher.Hash("key-1"), other.Hash("key-1"),
		"same key under a different deployment secret must not collide")
}
