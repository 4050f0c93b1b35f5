// Package fieldcrypt encrypts individual PII columns.
//
// A sealed value is stored as iv_hex:ciphertext_hex (AES-256-GCM, the iv is the
// 12 byte nonce and the ciphertext carries the auth tag). Values are sealed under
// the current key; the previous key is only ever used to read.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// ErrDecryptFailed means a sealed value could not be opened with any configured key.
var ErrDecryptFailed = errors.New("field decrypt failed")

const hkdfInfo = "rental-backend/fieldcrypt/v1"

// Sealed is a PII value as stored. It never prints its content.
type Sealed string

func (s Sealed) String() string {
	if s == "" {
		return ""
	}
	return "[encrypted]"
}

func (s Sealed) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// LooksSealed reports whether s has the iv_hex:ciphertext_hex shape.
func (s Sealed) LooksSealed() bool {
	iv, ct, ok := strings.Cut(string(s), ":")
	return ok && iv != "" && ct != "" && isHex(iv) && isHex(ct)
}

// Config carries key material. Keys are either 64 hex characters (a raw
// 32 byte key) or a passphrase of at least 16 characters run through HKDF-SHA256.
type Config struct {
	CurrentKey  string
	PreviousKey string
}

type Cipher struct {
	current  cipher.AEAD
	previous cipher.AEAD
	rand     io.Reader
}

func New(cfg Config) (*Cipher, error) {
	if cfg.CurrentKey == "" {
		return nil, errors.New("fieldcrypt: current key is required")
	}
	current, err := newAEAD(cfg.CurrentKey)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: current key: %w", err)
	}
	c := &Cipher{current: current, rand: rand.Reader}
	if cfg.PreviousKey != "" {
		previous, err := newAEAD(cfg.PreviousKey)
		if err != nil {
			return nil, fmt.Errorf("fieldcrypt: previous key: %w", err)
		}
		c.previous = previous
	}
	return c, nil
}

func newAEAD(material string) (cipher.AEAD, error) {
	key, err := deriveKey(material)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func deriveKey(material string) ([]byte, error) {
	if len(material) == 64 && isHex(material) {
		return hex.DecodeString(material)
	}
	if len(material) < 16 {
		return nil, errors.New("key must be 64 hex characters or a passphrase of at least 16 characters")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(material), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt seals plaintext under the current key. Empty stays empty so optional
// columns do not turn into ciphertext of nothing.
func (c *Cipher) Encrypt(plaintext string) (Sealed, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.current.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("fieldcrypt: nonce: %w", err)
	}
	ct := c.current.Seal(nil, nonce, []byte(plaintext), nil)
	return Sealed(hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ct)), nil
}

// Decrypt opens a stored value. It never returns an error: a value that cannot
// be opened comes back as a failed Result and the caller picks a policy.
func (c *Cipher) Decrypt(stored Sealed) Result {
	if stored == "" {
		return Result{status: StatusEmpty}
	}
	if plain, ok := open(c.current, stored); ok {
		return Result{plaintext: plain, status: StatusCurrent}
	}
	if c.previous != nil {
		if plain, ok := open(c.previous, stored); ok {
			return Result{plaintext: plain, status: StatusPrevious}
		}
	}
	return Result{status: StatusFailed, stored: stored}
}

func open(aead cipher.AEAD, stored Sealed) (string, bool) {
	ivHex, ctHex, ok := strings.Cut(string(stored), ":")
	if !ok {
		return "", false
	}
	nonce, err := hex.DecodeString(ivHex)
	if err != nil || len(nonce) != aead.NonceSize() {
		return "", false
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", false
	}
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", false
	}
	return string(plain), true
}

// RotateAction says what Rotate did with a value.
type RotateAction int

const (
	RotateUnchanged RotateAction = iota
	RotateReencrypted
	RotateLegacyEncrypted
	RotateFailed
)

// Rotate re-seals a value under the current key. Values sealed under the
// previous key are re-encrypted; values without the sealed shape are legacy
// plaintext and get encrypted; sealed values no key opens are returned as-is
// with ErrDecryptFailed.
func (c *Cipher) Rotate(stored Sealed) (Sealed, RotateAction, error) {
	res := c.Decrypt(stored)
	switch res.status {
	case StatusEmpty, StatusCurrent:
		return stored, RotateUnchanged, nil
	case StatusPrevious:
		out, err := c.Encrypt(res.plaintext)
		if err != nil {
			return stored, RotateFailed, err
		}
		return out, RotateReencrypted, nil
	}
	if stored.LooksSealed() {
		return stored, RotateFailed, ErrDecryptFailed
	}
	out, err := c.Encrypt(string(stored))
	if err != nil {
		return stored, RotateFailed, err
	}
	return out, RotateLegacyEncrypted, nil
}

func isHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !(ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'f' || ch >= 'A' && ch <= 'F') {
			return false
		}
	}
	return true
}
