package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCredentialEncryptor_EmptyKey(t *testing.T) {
	_, err := NewCredentialEncryptor("")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	enc, err := NewCredentialEncryptor("a-passphrase-for-tests")
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("sk-vision-key-12345")
	require.NoError(t, err)
	assert.NotEqual(t, "sk-vision-key-12345", ciphertext)

	plaintext, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "sk-vision-key-12345", plaintext)
}

func TestEncrypt_EmptyPassthrough(t *testing.T) {
	enc, err := NewCredentialEncryptor("key")
	require.NoError(t, err)

	out, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = enc.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecrypt_WrongKey(t *testing.T) {
	enc1, err := NewCredentialEncryptor("key-one")
	require.NoError(t, err)
	enc2, err := NewCredentialEncryptor("key-two")
	require.NoError(t, err)

	ciphertext, err := enc1.Encrypt("secret")
	require.NoError(t, err)

	_, err = enc2.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_Garbage(t *testing.T) {
	enc, err := NewCredentialEncryptor("key")
	require.NoError(t, err)

	_, err = enc.Decrypt("not-base64!!!")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = enc.Decrypt("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	enc, err := NewCredentialEncryptor("key")
	require.NoError(t, err)

	a, err := enc.Encrypt("same-input")
	require.NoError(t, err)
	b, err := enc.Encrypt("same-input")
	require.NoError(t, err)

	// Random nonce per call
	assert.NotEqual(t, a, b)
}
