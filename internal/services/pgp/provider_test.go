package pgp

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"egiro-gateway/pkg/errors"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEntity(t *testing.T, name string) *openpgp.Entity {
	t.Helper()
	e, err := openpgp.NewEntity(name, "", name+"@example.com", &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA})
	require.NoError(t, err)
	return e
}

func armorPrivate(t *testing.T, e *openpgp.Entity) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, e.SerializePrivateWithoutSigning(w, nil))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func armorPublic(t *testing.T, e *openpgp.Entity) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, e.Serialize(w))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func keyringDirs(t *testing.T, base string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(base, keyringPrefix+"*"))
	require.NoError(t, err)
	return matches
}

func TestSignDetached_VerifiesAgainstPublicKey(t *testing.T) {
	base := t.TempDir()
	provider := NewProvider(base, zap.NewNop())
	signer := newEntity(t, "tenant")
	message := "applicantBankCode=BANKXXSGSGXXX&boName=ACME&nonce=12345678901234567890"

	result, err := provider.SignDetached(context.Background(), message, KeyMaterial{PrivateKey: armorPrivate(t, signer)})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Armored, signatureMarker))
	assert.Equal(t, Fingerprint(signer), result.SignerFingerprint)

	pub, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(armorPublic(t, signer)))
	require.NoError(t, err)
	_, err = openpgp.CheckArmoredDetachedSignature(pub, strings.NewReader(message), strings.NewReader(result.Armored), nil)
	assert.NoError(t, err)

	_, err = openpgp.CheckArmoredDetachedSignature(pub, strings.NewReader(message+"x"), strings.NewReader(result.Armored), nil)
	assert.Error(t, err)
	assert.Empty(t, keyringDirs(t, base))
}

func TestSignDetached_PassphraseProtectedKey(t *testing.T) {
	provider := NewProvider(t.TempDir(), zap.NewNop())
	signer := newEntity(t, "locked")
	passphrase := []byte("correct horse")
	require.NoError(t, signer.PrivateKey.Encrypt(passphrase))
	for _, sub := range signer.Subkeys {
		require.NoError(t, sub.PrivateKey.Encrypt(passphrase))
	}
	armored := armorPrivate(t, signer)

	_, err := provider.SignDetached(context.Background(), "m", KeyMaterial{PrivateKey: armored, Passphrase: passphrase})
	require.NoError(t, err)

	_, err = provider.SignDetached(context.Background(), "m", KeyMaterial{PrivateKey: armored, Passphrase: []byte("wrong")})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindSigning))
	assert.NotContains(t, err.Error(), "wrong")

	_, err = provider.SignDetached(context.Background(), "m", KeyMaterial{PrivateKey: armored})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindSigning))
}

func TestSignDetached_SelectsByFingerprintOrKeyID(t *testing.T) {
	provider := NewProvider(t.TempDir(), zap.NewNop())
	signer := newEntity(t, "tenant")
	armored := armorPrivate(t, signer)

	fp := strings.ToLower(Fingerprint(signer))
	result, err := provider.SignDetached(context.Background(), "m", KeyMaterial{PrivateKey: armored, Fingerprint: fp})
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(signer), result.SignerFingerprint)

	keyID := Fingerprint(signer)[len(Fingerprint(signer))-16:]
	_, err = provider.SignDetached(context.Background(), "m", KeyMaterial{PrivateKey: armored, Fingerprint: keyID})
	require.NoError(t, err)

	_, err = provider.SignDetached(context.Background(), "m", KeyMaterial{PrivateKey: armored, Fingerprint: "DEADBEEFDEADBEEF"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindKeyImport))
}

func TestSignDetached_SelectsByIssuerEmail(t *testing.T) {
	provider := NewProvider(t.TempDir(), zap.NewNop())
	signer := newEntity(t, "tenant")
	armored := armorPrivate(t, signer)

	result, err := provider.SignDetached(context.Background(), "m", KeyMaterial{PrivateKey: armored, Fingerprint: "Tenant@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(signer), result.SignerFingerprint)

	_, err = provider.SignDetached(context.Background(), "m", KeyMaterial{PrivateKey: armored, Fingerprint: "nobody@example.com"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindKeyImport))
}

func TestSignDetached_RejectsGarbageAndPublicOnlyKeys(t *testing.T) {
	base := t.TempDir()
	provider := NewProvider(base, zap.NewNop())

	_, err := provider.SignDetached(context.Background(), "m", KeyMaterial{PrivateKey: []byte("not a key")})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindKeyImport))

	_, err = provider.SignDetached(context.Background(), "m", KeyMaterial{PrivateKey: armorPublic(t, newEntity(t, "pub"))})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindKeyImport))

	assert.Empty(t, keyringDirs(t, base))
}

func TestSignDetached_CancelledBeforeImport(t *testing.T) {
	base := t.TempDir()
	provider := NewProvider(base, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.SignDetached(ctx, "m", KeyMaterial{PrivateKey: armorPrivate(t, newEntity(t, "x"))})

	require.Error(t, err)
	assert.Empty(t, keyringDirs(t, base))
}

func TestSignAndEncrypt_RecipientCanDecryptAndVerify(t *testing.T) {
	base := t.TempDir()
	provider := NewProvider(base, zap.NewNop())
	tenant := newEntity(t, "tenant")
	aggregator := newEntity(t, "aggregator")
	body := []byte(`{"message":"This is a test message"}`)

	result, err := provider.SignAndEncrypt(context.Background(), body,
		KeyMaterial{PrivateKey: armorPrivate(t, tenant)},
		PublicKey{Armored: armorPublic(t, aggregator)})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Armored, messageMarker))
	assert.Empty(t, keyringDirs(t, base))

	block, err := armor.Decode(strings.NewReader(result.Armored))
	require.NoError(t, err)
	md, err := openpgp.ReadMessage(block.Body, openpgp.EntityList{aggregator, tenant}, nil, nil)
	require.NoError(t, err)
	plaintext, err := io.ReadAll(md.UnverifiedBody)
	require.NoError(t, err)

	assert.Equal(t, body, plaintext)
	assert.True(t, md.IsEncrypted)
	assert.True(t, md.IsSigned)
	assert.NoError(t, md.SignatureError)
	require.NotNil(t, md.SignedBy)
	assert.Equal(t, tenant.PrimaryKey.KeyId, md.SignedBy.PublicKey.KeyId)
}

func TestSignAndEncrypt_UnknownRecipientFingerprint(t *testing.T) {
	provider := NewProvider(t.TempDir(), zap.NewNop())

	_, err := provider.SignAndEncrypt(context.Background(), []byte("m"),
		KeyMaterial{PrivateKey: armorPrivate(t, newEntity(t, "tenant"))},
		PublicKey{Armored: armorPublic(t, newEntity(t, "aggregator")), Fingerprint: "0000000000000000"})

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindKeyImport))
}

func TestProvider_ConcurrentOperationsLeaveNoKeyrings(t *testing.T) {
	base := t.TempDir()
	provider := NewProvider(base, zap.NewNop())
	key := KeyMaterial{PrivateKey: armorPrivate(t, newEntity(t, "tenant"))}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := provider.SignDetached(context.Background(), "message", key)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Empty(t, keyringDirs(t, base))
}

func TestKeyring_AcquireIsPrivateAndReleaseIdempotent(t *testing.T) {
	base := t.TempDir()

	a, err := Acquire(base)
	require.NoError(t, err)
	b, err := Acquire(base)
	require.NoError(t, err)
	assert.NotEqual(t, a.Dir(), b.Dir())

	info, err := os.Stat(a.Dir())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	require.NoError(t, a.Release())
	require.NoError(t, a.Release())
	_, err = os.Stat(a.Dir())
	assert.True(t, os.IsNotExist(err))

	_, err = a.Import([]byte("x"))
	assert.Error(t, err)
	require.NoError(t, b.Release())
}

func TestKeyring_AcquireFailureIsCryptoError(t *testing.T) {
	base := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(base, []byte("x"), 0o600))

	_, err := Acquire(base)

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindSigning))
	domainErr, ok := errors.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, "AG0004", domainErr.AGCode())
}

func TestSweep_RemovesOnlyStaleKeyrings(t *testing.T) {
	base := t.TempDir()
	stale := filepath.Join(base, keyringPrefix+"stale")
	fresh := filepath.Join(base, keyringPrefix+"fresh")
	other := filepath.Join(base, "unrelated")
	for _, dir := range []string{stale, fresh, other} {
		require.NoError(t, os.Mkdir(dir, 0o700))
	}
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	removed := Sweep(base, time.Hour, zap.NewNop())

	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
	assert.Equal(t, 0, Sweep(filepath.Join(base, "missing"), time.Hour, zap.NewNop()))
}

func TestFileKeyLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.asc")
	require.NoError(t, os.WriteFile(path, []byte("armored"), 0o600))

	data, err := FileKeyLoader{}.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("armored"), data)

	_, err = FileKeyLoader{}.Load(filepath.Join(t.TempDir(), "missing.asc"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindKeyNotFound))

	_, err = FileKeyLoader{}.Load("")
	assert.True(t, errors.IsKind(err, errors.KindKeyNotFound))
}

func TestKeyMaterial_StringRedacts(t *testing.T) {
	key := KeyMaterial{PrivateKey: []byte("secret"), Passphrase: []byte("pass")}

	assert.Equal(t, "KeyMaterial{redacted}", key.String())
}
