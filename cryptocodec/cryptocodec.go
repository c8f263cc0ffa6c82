// Package cryptocodec implements the optional encryption codec from
// spec §6 (encrypt/decrypt, standard-bucket keys only). Grounded on
// KilimcininKorOglu-oba's internal/crypto key.go: AES-256-GCM with a
// random 12-byte nonce prepended to the ciphertext. Built on the
// standard library because no repo in the example pack brings in a
// third-party AEAD package — crypto/aes + crypto/cipher is the one
// place this module reaches for stdlib over an ecosystem library, and
// that absence from the whole pack is the justification.
package cryptocodec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// NonceSize is the GCM standard nonce length.
	NonceSize = 12
	// KeySize is the AES-256 key length.
	KeySize = 32
)

var ErrInvalidKey = errors.New("cryptocodec: key must be 32 bytes")
var ErrCiphertextTooShort = errors.New("cryptocodec: ciphertext shorter than nonce")

// Codec is the standard-variant-only "optional encryption codec"
// collaborator: encrypt(bytes) -> bytes, decrypt(bytes) -> bytes. The
// bucket layer calls it on a key's raw bytes before writing the
// length-prefixed ciphertext entry described in spec §4.1.
type Codec struct {
	aead cipher.AEAD
}

// New builds a codec from a raw 32-byte AES-256 key.
func New(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptocodec: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptocodec: new gcm: %w", err)
	}
	return &Codec{aead: gcm}, nil
}

// GenerateKey returns a fresh random 32-byte AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("cryptocodec: generate key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under a fresh random nonce, returning
// nonce||ciphertext||tag.
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptocodec: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce||ciphertext||tag blob produced by Encrypt.
func (c *Codec) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < NonceSize {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptocodec: decrypt: %w", err)
	}
	return plaintext, nil
}
