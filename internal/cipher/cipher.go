// Package cipher implements the emulator's demonstrative confidentiality
// layer: a nonce-prefixed XOR stream cipher (§4.2). It is deliberately weak —
// the keystream is the nonce and key repeated, with no per-message key
// derivation and no authentication (LoadKeyFile's HKDF step only turns a key
// file into a fixed key) — and is documented as such; it exists
// to exercise the pipeline stage, not to protect real traffic.
package cipher

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/hkdf"
)

// MinKeyLen is the minimum accepted key length in bytes.
const MinKeyLen = 8

// NonceLen is the number of random bytes prefixed to each ciphertext.
const NonceLen = 4

// DefaultKey is the process-wide demonstration key used when no explicit key
// is configured. It is not secret and must never be relied on for anything
// beyond local testing — two communicating endpoints normally share an
// explicit key loaded via --key-file (see cmd/linkemu/config.go).
var DefaultKey = []byte("linkemu-demo-key")

// ErrKeyTooShort is returned by New when the supplied key is shorter than
// MinKeyLen.
var ErrKeyTooShort = errors.New("cipher: key must be at least 8 bytes")

// ErrTooShort is returned by Decipher when the input is shorter than
// NonceLen+1 bytes, i.e. it does not hold a nonce plus at least one
// ciphertext byte.
var ErrTooShort = errors.New("cipher: ciphertext shorter than nonce plus one byte")

// Cipher applies and removes the nonce-prefixed XOR keystream cipher for a
// fixed key. It holds no mutable state and is safe for concurrent use.
type Cipher struct {
	key []byte
}

// New constructs a Cipher from an explicit key. Two endpoints on a link must
// be constructed with the same key.
func New(key []byte) (*Cipher, error) {
	if len(key) < MinKeyLen {
		return nil, fmt.Errorf("%w: got %d bytes", ErrKeyTooShort, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Cipher{key: k}, nil
}

// NewDefault constructs a Cipher using the package's demonstration key.
func NewDefault() *Cipher {
	c, err := New(DefaultKey)
	if err != nil {
		// DefaultKey is a package invariant; a failure here is a programming error.
		panic(err)
	}
	return c
}

// keystreamByte returns byte i of the (nonce || key) repeating keystream.
func (c *Cipher) keystreamByte(nonce []byte, i int) byte {
	period := len(nonce) + len(c.key)
	j := i % period
	if j < len(nonce) {
		return nonce[j]
	}
	return c.key[j-len(nonce)]
}

// Cipher generates a random 4-byte nonce and returns nonce‖XOR(plaintext, keystream).
func (c *Cipher) Cipher(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cipher: read nonce: %w", err)
	}
	out := make([]byte, NonceLen+len(plaintext))
	copy(out[:NonceLen], nonce)
	for i, b := range plaintext {
		out[NonceLen+i] = b ^ c.keystreamByte(nonce, i)
	}
	return out, nil
}

// keyInfo labels the HKDF expansion so a key file loaded for one purpose
// never collides with a key derived from the same bytes for another.
const keyInfo = "linkemu-cipher-key"

// LoadKeyFile reads raw key material from path and derives a 2*MinKeyLen-byte
// (16-byte) cipher key via HKDF-SHA256 (two endpoints loading the same file
// agree on the same derived key; the file itself need not be of any set length,
// nor uniformly random, since HKDF's extract step whitens it).
func LoadKeyFile(path string) (*Cipher, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cipher: read key file: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("cipher: key file %q is empty", path)
	}
	kdf := hkdf.New(sha256.New, raw, nil, []byte(keyInfo))
	derived := make([]byte, MinKeyLen*2)
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("cipher: derive key: %w", err)
	}
	return New(derived)
}

// Decipher recovers the plaintext from a nonce-prefixed blob produced by Cipher.
func (c *Cipher) Decipher(blob []byte) ([]byte, error) {
	if len(blob) < NonceLen+1 {
		return nil, ErrTooShort
	}
	nonce := blob[:NonceLen]
	ct := blob[NonceLen:]
	out := make([]byte, len(ct))
	for i, b := range ct {
		out[i] = b ^ c.keystreamByte(nonce, i)
	}
	return out, nil
}
