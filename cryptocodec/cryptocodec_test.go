package cryptocodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	c, err := New(key)
	require.NoError(t, err)

	plaintext := []byte("sub-page bucket key bytes")
	blob, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, blob)

	got, err := c.Decrypt(blob)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestEncryptProducesDistinctNoncesEachTime(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := New(key)
	require.NoError(t, err)

	a, err := c.Encrypt([]byte("same input"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same input"))
	require.NoError(t, err)

	require.NotEqual(t, a, b, "a fresh random nonce should make repeated encryptions differ")
}

func TestNewRejectsWrongKeySize(t *testing.T) {
	_, err := New(make([]byte, 16))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := New(key)
	require.NoError(t, err)

	_, err = c.Decrypt([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := New(key)
	require.NoError(t, err)

	blob, err := c.Encrypt([]byte("sensitive"))
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xFF

	_, err = c.Decrypt(blob)
	require.Error(t, err)
}
