package store

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/Hussein-Mazeh/vaultkeeper/internal/vault"
	"github.com/Hussein-Mazeh/vaultkeeper/krypto"
)

var (
	ErrNotFound           = errors.New("vault file not found")
	ErrCorrupted          = errors.New("vault file is corrupted")
	ErrVersionUnsupported = errors.New("vault file version is not supported")
	ErrIO                 = errors.New("vault file i/o error")
)

// rename is swapped by tests to simulate a crash between the temp write and the replace.
var rename = os.Rename

type kdfJSON struct {
	Name       string `json:"name"`
	Iterations int    `json:"iterations,omitempty"`
	Time       int    `json:"time,omitempty"`
	MemoryKiB  int    `json:"memoryKiB,omitempty"`
	Threads    int    `json:"threads,omitempty"`
}

// fileJSON is the on-disk shape. Pointers let Load tell a missing field from a zero one.
type fileJSON struct {
	Version    *int     `json:"version"`
	KDF        *kdfJSON `json:"kdf,omitempty"`
	Salt       *string  `json:"salt"`
	Nonce      *string  `json:"nonce"`
	Ciphertext *string  `json:"ciphertext"`
}

func ioErr(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrIO)
}

func corrupted(format string, args ...interface{}) error {
	return errors.Wrapf(ErrCorrupted, format, args...)
}

// Exists reports whether a vault file is present at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, ioErr(err, "stat vault file")
}

// Load reads and validates the vault file at path. It does not decrypt.
func Load(path string) (vault.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return vault.File{}, errors.WithHint(
				errors.Wrapf(ErrNotFound, "%s", path),
				"create a new vault first")
		}
		return vault.File{}, ioErr(err, "read vault file")
	}
	return Decode(data)
}

// Decode parses the JSON container.
func Decode(data []byte) (vault.File, error) {
	var raw fileJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return vault.File{}, corrupted("decode json: %v", err)
	}

	if raw.Version == nil {
		return vault.File{}, corrupted("missing version")
	}
	if *raw.Version != vault.FormatVersion {
		return vault.File{}, errors.Wrapf(ErrVersionUnsupported, "version %d", *raw.Version)
	}

	params, err := decodeKDF(raw.KDF)
	if err != nil {
		return vault.File{}, err
	}

	salt, err := decodeField("salt", raw.Salt)
	if err != nil {
		return vault.File{}, err
	}
	nonce, err := decodeField("nonce", raw.Nonce)
	if err != nil {
		return vault.File{}, err
	}
	ciphertext, err := decodeField("ciphertext", raw.Ciphertext)
	if err != nil {
		return vault.File{}, err
	}

	if len(salt) < krypto.SaltLen {
		return vault.File{}, corrupted("salt is %d bytes, want at least %d", len(salt), krypto.SaltLen)
	}
	if len(nonce) != krypto.NonceSize {
		return vault.File{}, corrupted("nonce is %d bytes, want %d", len(nonce), krypto.NonceSize)
	}
	if len(ciphertext) < krypto.TagSize {
		return vault.File{}, corrupted("ciphertext shorter than authentication tag")
	}

	return vault.File{
		Version:    *raw.Version,
		KDF:        params,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

func decodeField(name string, v *string) ([]byte, error) {
	if v == nil {
		return nil, corrupted("missing %s", name)
	}
	b, err := base64.StdEncoding.DecodeString(*v)
	if err != nil {
		return nil, corrupted("decode %s: %v", name, err)
	}
	return b, nil
}

func decodeKDF(k *kdfJSON) (krypto.KDFParams, error) {
	if k == nil {
		return krypto.DefaultKDFParams(), nil
	}
	var p krypto.KDFParams
	switch k.Name {
	case krypto.KDFPBKDF2:
		p = krypto.KDFParams{Name: k.Name, Iterations: k.Iterations}
	case krypto.KDFArgon2id:
		if k.Time <= 0 || k.MemoryKiB <= 0 || k.Threads <= 0 {
			return krypto.KDFParams{}, corrupted("argon2id parameters must be positive")
		}
		if int64(k.Time) > math.MaxUint32 || int64(k.MemoryKiB) > math.MaxUint32 || k.Threads > math.MaxUint8 {
			return krypto.KDFParams{}, corrupted("argon2id parameters out of range")
		}
		p = krypto.Argon2idKDFParams(krypto.Argon2Params{
			Time:      uint32(k.Time),
			MemoryKiB: uint32(k.MemoryKiB),
			Threads:   uint8(k.Threads),
		})
	default:
		return krypto.KDFParams{}, errors.Wrapf(ErrVersionUnsupported, "kdf %q", k.Name)
	}
	// The header is untrusted until the ciphertext authenticates, so the cost
	// bounds are enforced before any derivation runs.
	if err := p.Validate(); err != nil {
		return krypto.KDFParams{}, corrupted("kdf: %v", err)
	}
	return p, nil
}

// Encode renders f as the JSON container.
func Encode(f vault.File) ([]byte, error) {
	if err := f.KDF.Validate(); err != nil {
		return nil, errors.Wrap(err, "encode vault file")
	}
	version := f.Version
	k := &kdfJSON{Name: f.KDF.Name}
	switch f.KDF.Name {
	case krypto.KDFPBKDF2:
		k.Iterations = f.KDF.Iterations
	case krypto.KDFArgon2id:
		k.Time = int(f.KDF.Argon2.Time)
		k.MemoryKiB = int(f.KDF.Argon2.MemoryKiB)
		k.Threads = int(f.KDF.Argon2.Threads)
	}
	salt := base64.StdEncoding.EncodeToString(f.Salt)
	nonce := base64.StdEncoding.EncodeToString(f.Nonce)
	ct := base64.StdEncoding.EncodeToString(f.Ciphertext)

	data, err := json.MarshalIndent(fileJSON{
		Version:    &version,
		KDF:        k,
		Salt:       &salt,
		Nonce:      &nonce,
		Ciphertext: &ct,
	}, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode vault file")
	}
	return data, nil
}

// Save writes f to path atomically with 0600 permissions. On failure the
// previous file, if any, is left untouched and no temp file remains.
func Save(path string, f vault.File) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ioErr(err, "create vault directory")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return ioErr(err, "create temp vault file")
	}
	tmpPath := tmp.Name()

	fail := func(err error, msg string) error {
		tmp.Close()
		os.Remove(tmpPath)
		return ioErr(err, msg)
	}

	if err := tmp.Chmod(0o600); err != nil {
		return fail(err, "chmod temp vault file")
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err, "write temp vault file")
	}
	if err := tmp.Sync(); err != nil {
		return fail(err, "sync temp vault file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return ioErr(err, "close temp vault file")
	}

	if err := rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return ioErr(err, "replace vault file")
	}

	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
