package krypto

import (
	"crypto/rand"
	"crypto/sha256"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltLen is the length of a freshly generated vault salt and the minimum accepted on load.
	SaltLen = 16
	// KeyLen is the derived key size (AES-256).
	KeyLen = 32

	// DefaultPBKDF2Iterations is the work factor used for new PBKDF2 vaults.
	DefaultPBKDF2Iterations = 480000

	KDFPBKDF2   = "pbkdf2-sha256"
	KDFArgon2id = "argon2id"

	// Upper bounds on the cost read from a vault file. A tampered header must
	// not be able to exhaust memory or stall an unlock indefinitely.
	MaxPBKDF2Iterations = 10_000_000
	MaxArgon2Time       = 64
	MaxArgon2MemoryKiB  = 1 << 20 // 1 GiB
	MaxArgon2Threads    = 64
)

var (
	ErrEmptyPassphrase = errors.New("passphrase is required")
	ErrShortSalt       = errors.Newf("salt must be at least %d bytes", SaltLen)
	ErrInvalidParams   = errors.New("invalid kdf parameters")
	ErrUnknownKDF      = errors.New("unknown kdf")
)

// Key is derived key material. Callers own it and should Wipe it when done.
type Key []byte

// Wipe zeroes the key in place.
func (k Key) Wipe() {
	for i := range k {
		k[i] = 0
	}
}

// Argon2Params captures tunable parameters for Argon2id.
type Argon2Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultArgon2Params returns sane defaults for deriving a 256-bit key.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:      3,
		MemoryKiB: 64 * 1024,
		Threads:   1,
	}
}

// KDFParams selects a derivation function and its cost.
type KDFParams struct {
	Name       string
	Iterations int
	Argon2     Argon2Params
}

// DefaultKDFParams is PBKDF2-HMAC-SHA256 at DefaultPBKDF2Iterations.
func DefaultKDFParams() KDFParams {
	return KDFParams{Name: KDFPBKDF2, Iterations: DefaultPBKDF2Iterations}
}

// Argon2idKDFParams wraps p as KDFParams.
func Argon2idKDFParams(p Argon2Params) KDFParams {
	return KDFParams{Name: KDFArgon2id, Argon2: p}
}

// Validate checks that the parameters name a known function with costs
// that are positive and within the Max* bounds.
func (p KDFParams) Validate() error {
	switch p.Name {
	case KDFPBKDF2:
		if p.Iterations <= 0 {
			return errors.Wrap(ErrInvalidParams, "iterations must be positive")
		}
		if p.Iterations > MaxPBKDF2Iterations {
			return errors.Wrapf(ErrInvalidParams, "iterations %d exceed %d", p.Iterations, MaxPBKDF2Iterations)
		}
	case KDFArgon2id:
		a := p.Argon2
		if a.Time == 0 {
			return errors.Wrap(ErrInvalidParams, "time parameter must be positive")
		}
		if a.MemoryKiB == 0 {
			return errors.Wrap(ErrInvalidParams, "memory parameter must be positive")
		}
		if a.Threads == 0 {
			return errors.Wrap(ErrInvalidParams, "threads parameter must be positive")
		}
		if a.Time > MaxArgon2Time || a.MemoryKiB > MaxArgon2MemoryKiB || a.Threads > MaxArgon2Threads {
			return errors.Wrapf(ErrInvalidParams, "argon2id cost t=%d m=%dKiB p=%d exceeds t=%d m=%dKiB p=%d",
				a.Time, a.MemoryKiB, a.Threads, MaxArgon2Time, MaxArgon2MemoryKiB, MaxArgon2Threads)
		}
	default:
		return errors.Wrapf(ErrUnknownKDF, "%q", p.Name)
	}
	return nil
}

// DeriveKey derives a KeyLen-byte key from passphrase and salt. It is deterministic.
func DeriveKey(passphrase, salt []byte, p KDFParams) (Key, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	if len(salt) < SaltLen {
		return nil, ErrShortSalt
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var key []byte
	switch p.Name {
	case KDFPBKDF2:
		key = pbkdf2.Key(passphrase, salt, p.Iterations, KeyLen, sha256.New)
	case KDFArgon2id:
		key = argon2.IDKey(passphrase, salt, p.Argon2.Time, p.Argon2.MemoryKiB, p.Argon2.Threads, KeyLen)
	}
	if len(key) != KeyLen {
		return nil, errors.Newf("derived key has unexpected length %d", len(key))
	}
	return Key(key), nil
}

// DeriveKeyPBKDF2 is DeriveKey with PBKDF2-HMAC-SHA256 at the given iteration count.
func DeriveKeyPBKDF2(passphrase, salt []byte, iterations int) (Key, error) {
	return DeriveKey(passphrase, salt, KDFParams{Name: KDFPBKDF2, Iterations: iterations})
}

// NewRandomSalt returns SaltLen bytes from crypto/rand.
func NewRandomSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "generate salt")
	}
	return salt, nil
}
