package vault

import "github.com/Hussein-Mazeh/vaultkeeper/krypto"

// FormatVersion is the only on-disk version this build reads and writes.
const FormatVersion = 1

// File is the decoded vault container. Binary fields hold raw bytes; the
// codec in package store takes care of base64.
type File struct {
	Version    int
	KDF        krypto.KDFParams
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
}

// AAD returns the associated data the payload of f is sealed with.
func (f File) AAD() []byte {
	return krypto.VersionAAD(f.Version)
}
