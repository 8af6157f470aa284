package pgp

import (
	"os"

	"egiro-gateway/pkg/errors"
)

// KeyMaterial is a tenant's signing identity. It must never be logged.
type KeyMaterial struct {
	PrivateKey  []byte
	Passphrase  []byte
	Fingerprint string
}

func (KeyMaterial) String() string { return "KeyMaterial{redacted}" }

// PublicKey is a counterparty encryption key.
type PublicKey struct {
	Armored     []byte
	Fingerprint string
}

// SignatureResult is the armored output of a signing operation.
type SignatureResult struct {
	Armored           string
	SignerFingerprint string
}

// KeyLoader reads key files at call time.
type KeyLoader interface {
	Load(path string) ([]byte, error)
}

// FileKeyLoader reads keys from the local filesystem.
type FileKeyLoader struct{}

func (FileKeyLoader) Load(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.NewDomainError(errors.KindKeyNotFound, errors.CodeKeyMaterial, "key file not found", "no key path configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapDomainError(err, errors.KindKeyNotFound, errors.CodeKeyMaterial, "key file not found", path)
	}
	if len(data) == 0 {
		return nil, errors.NewDomainError(errors.KindKeyNotFound, errors.CodeKeyMaterial, "key file not found", path+" is empty")
	}
	return data, nil
}
