package pgp

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"egiro-gateway/pkg/errors"

	"github.com/ProtonMail/go-crypto/openpgp"
	"go.uber.org/zap"
)

const keyringPrefix = "egiro-keyring-"

// Keyring is a private, single-use key store backed by its own directory.
// It is never shared between operations.
type Keyring struct {
	mu       sync.Mutex
	dir      string
	imported int
	entities openpgp.EntityList
	released bool
}

// Acquire creates a fresh keyring directory under baseDir with mode 0700.
func Acquire(baseDir string) (*Keyring, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, errors.WrapDomainError(err, errors.KindSigning, errors.CodeCrypto, "keyring base directory unavailable", baseDir)
	}

	suffix := make([]byte, 12)
	if _, err := rand.Read(suffix); err != nil {
		return nil, errors.WrapDomainError(err, errors.KindSigning, errors.CodeCrypto, "keyring name generation failed", "")
	}
	dir := filepath.Join(baseDir, keyringPrefix+hex.EncodeToString(suffix))
	// Mkdir rather than MkdirAll: an existing directory must be an error.
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, errors.WrapDomainError(err, errors.KindSigning, errors.CodeCrypto, "keyring creation failed", dir)
	}
	return &Keyring{dir: dir}, nil
}

// Dir returns the keyring directory.
func (k *Keyring) Dir() string {
	return k.dir
}

// Import stores an armored key block in the keyring and returns the
// fingerprints of the keys it contained.
func (k *Keyring) Import(armored []byte) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return nil, errors.NewDomainError(errors.KindSigning, errors.CodeCrypto, "keyring already released", "")
	}

	k.imported++
	path := filepath.Join(k.dir, fmt.Sprintf("key-%d.asc", k.imported))
	if err := os.WriteFile(path, armored, 0o600); err != nil {
		return nil, errors.WrapDomainError(err, errors.KindKeyImport, errors.CodeKeyMaterial, "key import failed", "could not write keyring file")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapDomainError(err, errors.KindKeyImport, errors.CodeKeyMaterial, "key import failed", "could not read keyring file")
	}
	defer f.Close()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, errors.WrapDomainError(err, errors.KindKeyImport, errors.CodeKeyMaterial, "key import failed", "not an armored OpenPGP key block")
	}
	if len(entities) == 0 {
		return nil, errors.NewDomainError(errors.KindKeyImport, errors.CodeKeyMaterial, "key import failed", "no keys found")
	}

	fingerprints := make([]string, 0, len(entities))
	for _, e := range entities {
		fingerprints = append(fingerprints, Fingerprint(e))
	}
	k.entities = append(k.entities, entities...)
	return fingerprints, nil
}

// Find returns the entity whose primary key or a subkey matches want, given
// as a full fingerprint or a 16-hex key id, or whose user id carries want as
// its email.
func (k *Keyring) Find(want string) (*openpgp.Entity, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return findEntity(k.entities, want)
}

// Release removes the keyring directory. Calling it again is a no-op.
func (k *Keyring) Release() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return nil
	}
	k.released = true
	k.entities = nil
	return os.RemoveAll(k.dir)
}

// Sweep removes keyring directories under baseDir older than olderThan,
// left behind by a process that died mid-operation.
func Sweep(baseDir string, olderThan time.Duration, logger *zap.Logger) int {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("keyring sweep skipped", zap.String("base_dir", baseDir), zap.Error(err))
		}
		return 0
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), keyringPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("failed to remove stale keyring", zap.String("dir", path), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("removed stale keyrings", zap.Int("count", removed), zap.String("base_dir", baseDir))
	}
	return removed
}

// Fingerprint renders an entity's primary key fingerprint as upper-case hex.
func Fingerprint(e *openpgp.Entity) string {
	return strings.ToUpper(hex.EncodeToString(e.PrimaryKey.Fingerprint))
}

func normalizeFingerprint(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strings.ToUpper(s)
}

func findEntity(entities openpgp.EntityList, want string) (*openpgp.Entity, bool) {
	if strings.Contains(want, "@") {
		return findByEmail(entities, strings.TrimSpace(want))
	}
	want = normalizeFingerprint(want)
	if want == "" {
		return nil, false
	}
	for _, e := range entities {
		if matchesKey(want, e.PrimaryKey.Fingerprint, e.PrimaryKey.KeyId) {
			return e, true
		}
		for _, sub := range e.Subkeys {
			if sub.PublicKey != nil && matchesKey(want, sub.PublicKey.Fingerprint, sub.PublicKey.KeyId) {
				return e, true
			}
		}
	}
	return nil, false
}

func matchesKey(want string, fingerprint []byte, keyID uint64) bool {
	if want == strings.ToUpper(hex.EncodeToString(fingerprint)) {
		return true
	}
	return len(want) == 16 && want == fmt.Sprintf("%016X", keyID)
}

func findByEmail(entities openpgp.EntityList, email string) (*openpgp.Entity, bool) {
	for _, e := range entities {
		for _, ident := range e.Identities {
			if ident.UserId != nil && strings.EqualFold(ident.UserId.Email, email) {
				return e, true
			}
		}
	}
	return nil, false
}
