package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
)

const (
	// NonceSize is the AES-GCM nonce length.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag length appended to every ciphertext.
	TagSize = 16
)

var (
	// ErrAuthFailure is returned by Open for any nonce, length, or authentication problem.
	// A wrong key and a tampered ciphertext are deliberately indistinguishable.
	ErrAuthFailure = errors.New("authentication failed")
	ErrInvalidKey  = errors.Newf("aes-gcm requires a %d-byte key", KeyLen)
)

// VersionAAD returns the associated data binding a payload to its file format version.
func VersionAAD(version int) []byte {
	return []byte("vaultkeeper/v" + strconv.Itoa(version))
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLen {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "create gcm")
	}
	return gcm, nil
}

// Seal encrypts plaintext using AES-256-GCM under a fresh random nonce,
// returning the nonce and ciphertext (with tag appended).
func Seal(key, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, errors.Wrap(err, "generate nonce")
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, aad)
	return nonce, ciphertext, nil
}

// Open decrypts ciphertext produced by Seal. It never returns partial plaintext.
func Open(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize || len(ciphertext) < TagSize {
		return nil, ErrAuthFailure
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return plaintext, nil
}
