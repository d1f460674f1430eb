package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := NewBox("super-secret-passphrase")
	require.NoError(t, err)

	secrets := []string{"refresh-token-abc", "a", "unicode-✓-secret", ""}
	for _, s := range secrets {
		ct, err := box.Encrypt(s)
		require.NoError(t, err)
		if s != "" {
			assert.NotEqual(t, s, ct)
			assert.True(t, IsEncrypted(ct))
		}
		pt, err := box.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, s, pt)
	}
}

func TestDecryptPassthroughForPlaintext(t *testing.T) {
	box, err := NewBox("key")
	require.NoError(t, err)

	pt, err := box.Decrypt("not-encrypted-value")
	require.NoError(t, err)
	assert.Equal(t, "not-encrypted-value", pt)
}

func TestNewBoxRejectsEmptyPassphrase(t *testing.T) {
	_, err := NewBox("")
	assert.Error(t, err)
}

func TestTokenHashDeterministic(t *testing.T) {
	h1 := TokenHash("refresh-token-xyz")
	h2 := TokenHash("refresh-token-xyz")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, TokenHash("refresh-token-other"))
	assert.Len(t, h1, 64)
}

func TestEncryptionNeverEqualsPlaintext(t *testing.T) {
	box, err := NewBox("k")
	require.NoError(t, err)
	for _, s := range []string{"x", "refresh", "0123456789"} {
		ct, err := box.Encrypt(s)
		require.NoError(t, err)
		assert.NotEqual(t, s, ct)
	}
}
