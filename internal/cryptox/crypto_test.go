package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	key := DeriveKey([]byte("correct horse"), salt)

	ciphertext, nonce, err := Encrypt("secret token", key)
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)
	require.Len(t, nonce, nonceSize)

	var out string
	require.NoError(t, Decrypt(ciphertext, nonce, key, &out))
	assert.Equal(t, "secret token", out)
}

func TestDecryptWrongKey(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	key := DeriveKey([]byte("one"), salt)
	other := DeriveKey([]byte("two"), salt)

	ciphertext, nonce, err := Encrypt("secret", key)
	require.NoError(t, err)

	var out string
	err = Decrypt(ciphertext, nonce, other, &out)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	key := DeriveKey([]byte("pass"), salt)

	ciphertext, nonce, err := Encrypt("secret", key)
	require.NoError(t, err)
	ciphertext[0] ^= 0xff

	var out string
	err = Decrypt(ciphertext, nonce, key, &out)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	assert.Equal(t, DeriveKey([]byte("p"), salt), DeriveKey([]byte("p"), salt))

	other, err := NewSalt()
	require.NoError(t, err)
	assert.NotEqual(t, DeriveKey([]byte("p"), salt), DeriveKey([]byte("p"), other))
}
