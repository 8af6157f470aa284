package pgp

import (
	"bytes"
	"context"
	"crypto"
	"strings"

	"egiro-gateway/pkg/errors"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"go.uber.org/zap"
)

const (
	signatureMarker = "-----BEGIN PGP SIGNATURE-----"
	messageMarker   = "-----BEGIN PGP MESSAGE-----"
)

// Provider signs and encrypts with per-operation ephemeral keyrings.
type Provider struct {
	baseDir string
	config  *packet.Config
	logger  *zap.Logger
}

// NewProvider creates a provider whose keyrings live under baseDir.
func NewProvider(baseDir string, logger *zap.Logger) *Provider {
	return &Provider{
		baseDir: baseDir,
		config: &packet.Config{
			DefaultHash:   crypto.SHA256,
			DefaultCipher: packet.CipherAES256,
		},
		logger: logger,
	}
}

// SignDetached produces an ASCII-armored detached signature over message.
func (p *Provider) SignDetached(ctx context.Context, message string, key KeyMaterial) (SignatureResult, error) {
	if err := ctx.Err(); err != nil {
		return SignatureResult{}, errors.WrapDomainError(err, errors.KindSigning, errors.CodeCrypto, "signing cancelled", "")
	}

	keyring, err := Acquire(p.baseDir)
	if err != nil {
		return SignatureResult{}, err
	}
	defer p.release(keyring)

	signer, err := p.loadSigner(keyring, key)
	if err != nil {
		return SignatureResult{}, err
	}

	var out bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&out, signer, strings.NewReader(message), p.config); err != nil {
		return SignatureResult{}, errors.WrapDomainError(err, errors.KindSigning, errors.CodeCrypto, "signing failed", "detached signature could not be produced")
	}
	armored := out.String()
	if !strings.Contains(armored, signatureMarker) {
		return SignatureResult{}, errors.NewDomainError(errors.KindSigning, errors.CodeCrypto, "signing failed", "output is not an armored signature")
	}

	fingerprint := Fingerprint(signer)
	p.logger.Debug("detached signature produced", zap.String("signer", fingerprint))
	return SignatureResult{Armored: armored, SignerFingerprint: fingerprint}, nil
}

// SignAndEncrypt signs message with key and encrypts the signed unit to
// recipient in one pass, producing an armored PGP MESSAGE.
func (p *Provider) SignAndEncrypt(ctx context.Context, message []byte, key KeyMaterial, recipient PublicKey) (SignatureResult, error) {
	if err := ctx.Err(); err != nil {
		return SignatureResult{}, errors.WrapDomainError(err, errors.KindEncryption, errors.CodeCrypto, "encryption cancelled", "")
	}

	keyring, err := Acquire(p.baseDir)
	if err != nil {
		return SignatureResult{}, err
	}
	defer p.release(keyring)

	signer, err := p.loadSigner(keyring, key)
	if err != nil {
		return SignatureResult{}, err
	}

	imported, err := keyring.Import(recipient.Armored)
	if err != nil {
		return SignatureResult{}, err
	}
	want := recipient.Fingerprint
	if want == "" {
		want = imported[0]
	}
	to, ok := keyring.Find(want)
	if !ok {
		return SignatureResult{}, errors.NewDomainError(errors.KindKeyImport, errors.CodeKeyMaterial, "recipient key not found", "configured fingerprint does not match the public key")
	}

	var out bytes.Buffer
	armorWriter, err := armor.Encode(&out, "PGP MESSAGE", nil)
	if err != nil {
		return SignatureResult{}, errors.WrapDomainError(err, errors.KindEncryption, errors.CodeCrypto, "encryption failed", "armor")
	}
	plaintext, err := openpgp.Encrypt(armorWriter, []*openpgp.Entity{to}, signer, &openpgp.FileHints{}, p.config)
	if err != nil {
		return SignatureResult{}, errors.WrapDomainError(err, errors.KindEncryption, errors.CodeCrypto, "encryption failed", "recipient key cannot encrypt")
	}
	if _, err := plaintext.Write(message); err != nil {
		return SignatureResult{}, errors.WrapDomainError(err, errors.KindEncryption, errors.CodeCrypto, "encryption failed", "write")
	}
	if err := plaintext.Close(); err != nil {
		return SignatureResult{}, errors.WrapDomainError(err, errors.KindEncryption, errors.CodeCrypto, "encryption failed", "finalize")
	}
	if err := armorWriter.Close(); err != nil {
		return SignatureResult{}, errors.WrapDomainError(err, errors.KindEncryption, errors.CodeCrypto, "encryption failed", "armor")
	}

	armored := out.String()
	if !strings.Contains(armored, messageMarker) {
		return SignatureResult{}, errors.NewDomainError(errors.KindEncryption, errors.CodeCrypto, "encryption failed", "output is not an armored message")
	}
	return SignatureResult{Armored: armored, SignerFingerprint: Fingerprint(signer)}, nil
}

// loadSigner imports the private key, selects the signing entity and unlocks it.
func (p *Provider) loadSigner(keyring *Keyring, key KeyMaterial) (*openpgp.Entity, error) {
	imported, err := keyring.Import(key.PrivateKey)
	if err != nil {
		return nil, err
	}
	want := key.Fingerprint
	if want == "" {
		want = imported[0]
	}
	signer, ok := keyring.Find(want)
	if !ok {
		return nil, errors.NewDomainError(errors.KindKeyImport, errors.CodeKeyMaterial, "signing key not found", "configured fingerprint does not match the imported key")
	}
	if signer.PrivateKey == nil {
		return nil, errors.NewDomainError(errors.KindKeyImport, errors.CodeKeyMaterial, "signing key not found", "key block holds no secret key")
	}
	if err := unlock(signer, key.Passphrase); err != nil {
		return nil, err
	}
	return signer, nil
}

func unlock(e *openpgp.Entity, passphrase []byte) error {
	if e.PrivateKey.Encrypted {
		if len(passphrase) == 0 {
			return errors.NewDomainError(errors.KindSigning, errors.CodeCrypto, "signing key locked", "passphrase required")
		}
		if err := e.PrivateKey.Decrypt(passphrase); err != nil {
			// The cause is dropped so nothing derived from the passphrase leaves here.
			return errors.NewDomainError(errors.KindSigning, errors.CodeCrypto, "signing key locked", "passphrase rejected")
		}
	}
	for _, sub := range e.Subkeys {
		if sub.PrivateKey == nil || !sub.PrivateKey.Encrypted {
			continue
		}
		if err := sub.PrivateKey.Decrypt(passphrase); err != nil {
			return errors.NewDomainError(errors.KindSigning, errors.CodeCrypto, "signing key locked", "subkey passphrase rejected")
		}
	}
	return nil
}

func (p *Provider) release(keyring *Keyring) {
	if err := keyring.Release(); err != nil {
		p.logger.Warn("failed to remove keyring", zap.String("dir", keyring.Dir()), zap.Error(err))
	}
}
