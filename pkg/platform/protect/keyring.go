// Package protect seals credential payloads and fingerprints personal data.
//
// Each sealed payload gets its own key reference. The data key is derived from the
// master secret and the reference with HKDF-SHA256, so only the reference needs to be
// stored next to the credential. Payloads are sealed with XChaCha20-Poly1305.
package protect

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	keyRefPrefix = "kr_"
	keyRefBytes  = 16
	minMasterLen = 32
	hkdfInfo     = "touristid/payload/v1"
)

var (
	ErrMasterTooShort = errors.New("protect: master secret must be at least 32 bytes")
	ErrBadKeyRef      = errors.New("protect: malformed key reference")
	ErrCiphertext     = errors.New("protect: ciphertext too short")
)

// Keyring derives per-payload keys from one master secret.
type Keyring struct {
	master []byte
}

// NewKeyring copies master; it must be at least 32 bytes.
func NewKeyring(master []byte) (*Keyring, error) {
	if len(master) < minMasterLen {
		return nil, ErrMasterTooShort
	}
	m := make([]byte, len(master))
	copy(m, master)
	return &Keyring{master: m}, nil
}

// Hash returns the hex SHA-256 digest of data. Used as the integrity reference.
func (k *Keyring) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Seal encrypts plaintext under a fresh key reference.
// The nonce is prepended to the returned ciphertext.
func (k *Keyring) Seal(plaintext []byte) (ciphertext []byte, keyRef string, err error) {
	raw := make([]byte, keyRefBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generate key reference: %w", err)
	}
	keyRef = keyRefPrefix + hex.EncodeToString(raw)

	aead, err := k.aead(keyRef)
	if err != nil {
		return nil, "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, "", fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(keyRef)), keyRef, nil
}

// Open decrypts a payload sealed by Seal with the same key reference.
func (k *Keyring) Open(ciphertext []byte, keyRef string) ([]byte, error) {
	aead, err := k.aead(keyRef)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertext
	}
	nonce, body := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, []byte(keyRef))
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	return plaintext, nil
}

func (k *Keyring) aead(keyRef string) (cipher.AEAD, error) {
	if len(keyRef) != len(keyRefPrefix)+2*keyRefBytes || keyRef[:len(keyRefPrefix)] != keyRefPrefix {
		return nil, ErrBadKeyRef
	}
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, k.master, []byte(keyRef), []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive payload key: %w", err)
	}
	return chacha20poly1305.NewX(key)
}
