package cipher

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCipher_Involution(t *testing.T) {
	c := NewDefault()
	cases := [][]byte{
		[]byte("a"),
		[]byte("Hello, world!"),
		bytes.Repeat([]byte{0xAB}, 1024),
	}
	for _, p := range cases {
		ct, err := c.Cipher(p)
		require.NoError(t, err)
		pt, err := c.Decipher(ct)
		require.NoError(t, err)
		require.Equal(t, p, pt)
	}
}

func TestCipher_NoncesDiffer(t *testing.T) {
	c := NewDefault()
	p := []byte("same plaintext every time")
	a, err := c.Cipher(p)
	require.NoError(t, err)
	b, err := c.Cipher(p)
	require.NoError(t, err)
	require.NotEqual(t, a[:NonceLen], b[:NonceLen], "nonces should differ across calls with overwhelming probability")
}

func TestNew_KeyTooShort(t *testing.T) {
	_, err := New([]byte("short"))
	require.ErrorIs(t, err, ErrKeyTooShort)
}

func TestDecipher_TooShort(t *testing.T) {
	c := NewDefault()
	_, err := c.Decipher(make([]byte, 4))
	require.ErrorIs(t, err, ErrTooShort)
}

func TestExplicitKey_MustMatchAcrossEndpoints(t *testing.T) {
	key := []byte("shared-secret-key")
	tx, err := New(key)
	require.NoError(t, err)
	rx, err := New(key)
	require.NoError(t, err)
	ct, err := tx.Cipher([]byte("payload"))
	require.NoError(t, err)
	pt, err := rx.Decipher(ct)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), pt)
}

func TestLoadKeyFile_MatchesAcrossEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.bin")
	require.NoError(t, os.WriteFile(path, []byte("arbitrary key material from a file"), 0o600))

	tx, err := LoadKeyFile(path)
	require.NoError(t, err)
	rx, err := LoadKeyFile(path)
	require.NoError(t, err)

	ct, err := tx.Cipher([]byte("payload"))
	require.NoError(t, err)
	pt, err := rx.Decipher(ct)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), pt)
}

func TestLoadKeyFile_DifferentFilesDeriveDifferentKeys(t *testing.T) {
	pathA := filepath.Join(t.TempDir(), "a.bin")
	pathB := filepath.Join(t.TempDir(), "b.bin")
	require.NoError(t, os.WriteFile(pathA, []byte("key material A"), 0o600))
	require.NoError(t, os.WriteFile(pathB, []byte("key material B"), 0o600))

	a, err := LoadKeyFile(pathA)
	require.NoError(t, err)
	b, err := LoadKeyFile(pathB)
	require.NoError(t, err)

	plaintext := []byte("payload-payload-payload")
	ct, err := a.Cipher(plaintext)
	require.NoError(t, err)
	recovered, err := b.Decipher(ct)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, recovered)
}

func TestLoadKeyFile_MissingFile(t *testing.T) {
	_, err := LoadKeyFile(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
}

func TestLoadKeyFile_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	_, err := LoadKeyFile(path)
	require.Error(t, err)
}
