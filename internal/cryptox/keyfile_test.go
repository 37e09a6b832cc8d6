package cryptox

import (
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateKeyPairFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "field.keypair")

	first := NewMockSecurity("field")
	created, err := LoadOrCreateKeyPairFile(first, path, []byte("pass"))
	require.NoError(t, err)
	assert.True(t, created)
	require.True(t, first.HasKeyPair())

	again := NewMockSecurity("someone else")
	created, err = LoadOrCreateKeyPairFile(again, path, []byte("pass"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.PublicKeyString(), again.PublicKeyString())

	wrong := NewMockSecurity("x")
	_, err = LoadOrCreateKeyPairFile(wrong, path, []byte("nope"))
	assert.ErrorIs(t, err, common.ErrAuthorizationFailed)
	assert.False(t, wrong.HasKeyPair())
}
