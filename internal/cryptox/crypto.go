// Package cryptox implements the Vault: authenticated symmetric encryption of
// secret material at rest (provider private keys, router passwords) under one
// key supplied at process start, plus SHA-256 digests used for verification
// without decryption.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of a vault key in bytes.
const KeySize = 32

const (
	blobVersion = byte(1)
	nonceSize   = 12
	hkdfInfo    = "hotspotpay vault aes-256-gcm v1"
)

// Vault seals and opens secrets with AES-256-GCM. The AES key is derived from
// the configured vault key with HKDF-SHA256, so the raw configured key is never
// used directly as a cipher key.
//
// A Vault is immutable after construction and safe for concurrent use. The
// zero value has no key and fails every keyed operation with
// common.ErrConfiguration.
type Vault struct {
	aead cipher.AEAD
}

// NewVault builds a Vault from a 32-byte key.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: vault key must be %d bytes, got %d", common.ErrConfiguration, KeySize, len(key))
	}

	subkey := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(hkdfInfo)), subkey); err != nil {
		return nil, fmt.Errorf("%w: derive subkey: %v", common.ErrConfiguration, err)
	}
	defer common.WipeByteArray(subkey)

	block, err := aes.NewCipher(subkey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}

	return &Vault{aead: aead}, nil
}

// NewVaultFromString decodes an encoded key (see EncodeKey) and builds a Vault.
// An empty string yields common.ErrConfiguration.
func NewVaultFromString(encoded string) (*Vault, error) {
	if encoded == "" {
		return nil, fmt.Errorf("%w: vault key is not set", common.ErrConfiguration)
	}
	key, err := DecodeKey(encoded)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)
	return NewVault(key)
}

// Encrypt seals plaintext. The returned blob is
// version(1) || nonce(12) || ciphertext+tag and is safe to persist.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	if v == nil || v.aead == nil {
		return nil, fmt.Errorf("%w: vault key is not set", common.ErrConfiguration)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, 1+nonceSize+len(plaintext)+v.aead.Overhead())
	out = append(out, blobVersion)
	out = append(out, nonce...)
	return v.aead.Seal(out, nonce, plaintext, []byte{blobVersion}), nil
}

// Decrypt opens a blob produced by Encrypt.
//
// An empty blob returns common.ErrNoValue. A blob that was sealed under a
// different key, was truncated, or was modified in any way returns
// common.ErrDecryption; partial plaintext is never returned.
func (v *Vault) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, common.ErrNoValue
	}
	if v == nil || v.aead == nil {
		return nil, fmt.Errorf("%w: vault key is not set", common.ErrConfiguration)
	}
	if len(blob) < 1+nonceSize+v.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", common.ErrDecryption)
	}
	if blob[0] != blobVersion {
		return nil, fmt.Errorf("%w: unknown blob version %d", common.ErrDecryption, blob[0])
	}

	nonce := blob[1 : 1+nonceSize]
	plaintext, err := v.aead.Open(nil, nonce, blob[1+nonceSize:], blob[:1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	return plaintext, nil
}

// Digest returns the hex SHA-256 of plaintext. It is used only for equality
// checks and does not depend on the vault key.
func Digest(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether plaintext hashes to digest, comparing in constant time.
func Verify(plaintext []byte, digest string) bool {
	if digest == "" {
		return false
	}
	return hmac.Equal([]byte(Digest(plaintext)), []byte(digest))
}

// GenerateKey returns a fresh random vault key.
func GenerateKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

// EncodeKey renders a key as URL-safe base64 for configuration files.
func EncodeKey(key []byte) string {
	return base64.URLEncoding.EncodeToString(key)
}

// DecodeKey parses a key produced by EncodeKey. Both padded and unpadded
// URL-safe base64 are accepted.
func DecodeKey(encoded string) ([]byte, error) {
	key, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		key, err = base64.RawURLEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: vault key is not valid base64: %v", common.ErrConfiguration, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: vault key must be %d bytes, got %d", common.ErrConfiguration, KeySize, len(key))
	}
	return key, nil
}
