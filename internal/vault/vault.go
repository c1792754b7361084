package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrDecryption marks any failure to recover a plaintext from a stored
// blob: malformed encoding, a bad authentication tag, or a key derived
// from a different secret (e.g. after rotation without re-encryption).
// Callers must treat it as a recoverable per-record failure.
var ErrDecryption = errors.New("vault: decryption failed")

const (
	// Argon2id parameters (recommended by OWASP)
	argon2Time      = 3
	argon2Memory    = 64 * 1024 // KiB
	argon2Threads   = 4
	argon2KeyLength = 32 // 256 bits for AES-256

	nonceSize = 12 // 96 bits (standard for AES-GCM)
	tagSize   = 16

	// Domain-separation salt for deriving the vault key from the
	// configured secret. Static on purpose: the same secret must
	// always derive the same key so previously stored blobs decrypt.
	keyDerivationSalt = "flowdeck-vault-v1"
)

// Vault encrypts and decrypts provider API keys at rest using
// AES-256-GCM under a key derived from the configured secret.
type Vault struct {
	aead cipher.AEAD
}

// New derives the encryption key from the secret and prepares the cipher.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, errors.New("vault: encryption secret is empty")
	}

	key := argon2.IDKey([]byte(secret), []byte(keyDerivationSalt), argon2Time, argon2Memory, argon2Threads, argon2KeyLength)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to initialize cipher: %v", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to initialize GCM: %v", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals the plaintext under a fresh random nonce and returns a
// single-string blob encoded as hex(nonce):hex(tag):hex(ciphertext).
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: failed to generate nonce: %v", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)

	// Seal appends the tag to the ciphertext; split for the blob format
	split := len(sealed) - tagSize
	ciphertext, tag := sealed[:split], sealed[split:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	), nil
}

// Decrypt splits the blob, verifies the authentication tag and returns
// the plaintext. All failures are wrapped in ErrDecryption.
func (v *Vault) Decrypt(blob string) (string, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 blob components, got %d", ErrDecryption, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: malformed nonce", ErrDecryption)
	}

	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: malformed auth tag", ErrDecryption)
	}

	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrDecryption)
	}

	sealed := append(ciphertext, tag...)
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	return string(plaintext), nil
}
