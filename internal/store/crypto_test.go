package store

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, EncryptionKeySize)
}

func TestTokenCipher_RoundTrip(t *testing.T) {
	c, err := NewTokenCipher(testKey(1))
	require.NoError(t, err)

	sealed, err := c.Seal("ya29.secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, "ya29.secret")

	again, err := c.Seal("ya29.secret")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonces must differ")

	opened, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ya29.secret", opened)
}

func TestTokenCipher_Plaintext(t *testing.T) {
	c, err := NewTokenCipher(testKey(1))
	require.NoError(t, err)

	sealed, err := c.Seal("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	opened, err := c.Open("legacy-plaintext")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plaintext", opened)

	var disabled *TokenCipher
	out, err := disabled.Seal("token")
	require.NoError(t, err)
	assert.Equal(t, "token", out)
}

func TestTokenCipher_Errors(t *testing.T) {
	_, err := NewTokenCipher([]byte("short"))
	assert.Error(t, err)

	c, err := NewTokenCipher(testKey(1))
	require.NoError(t, err)
	sealed, err := c.Seal("token")
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewTokenCipher(testKey(2))
		require.NoError(t, err)
		_, err = other.Open(sealed)
		assert.Error(t, err)
	})

	t.Run("no key", func(t *testing.T) {
		var disabled *TokenCipher
		_, err := disabled.Open(sealed)
		assert.ErrorContains(t, err, "no encryption key")
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := c.Open(sealedPrefix + "!!!")
		assert.Error(t, err)
		_, err = c.Open(sealedPrefix + base64.StdEncoding.EncodeToString([]byte("x")))
		assert.Error(t, err)
	})
}

func TestTokenCipherFromBase64(t *testing.T) {
	c, err := TokenCipherFromBase64("")
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = TokenCipherFromBase64(base64.StdEncoding.EncodeToString(testKey(3)))
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = TokenCipherFromBase64("not base64!")
	assert.Error(t, err)

	_, err = TokenCipherFromBase64(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
