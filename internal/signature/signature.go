package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/ssh"

	"pdlbus/internal/logger"
	"pdlbus/internal/product"
	pkgerrors "pdlbus/pkg/errors"
)

type Engine struct {
	logger logger.Logger
}

func NewEngine(log logger.Logger) *Engine {
	return &Engine{logger: log}
}

// Sign returns the base64 signature of p's digest. Ed25519 signs the digest
// directly; RSA uses PKCS#1 v1.5 and ECDSA uses ASN.1, both over SHA-256.
func (e *Engine) Sign(key crypto.PrivateKey, p *product.Product) (string, error) {
	digest, err := Digest(p)
	if err != nil {
		return "", pkgerrors.ErrSigning.WithCause(err)
	}

	var sig []byte
	switch k := key.(type) {
	case ed25519.PrivateKey:
		sig = ed25519.Sign(k, digest)
	case *ed25519.PrivateKey:
		sig = ed25519.Sign(*k, digest)
	case *rsa.PrivateKey:
		sig, err = rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, digest)
	case *ecdsa.PrivateKey:
		sig, err = ecdsa.SignASN1(rand.Reader, k, digest)
	default:
		return "", pkgerrors.ErrSigning.WithMessage(fmt.Sprintf("unsupported private key type %T", key))
	}
	if err != nil {
		return "", pkgerrors.ErrSigning.WithCause(err)
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

// SignProduct signs p and stores the signature on it. Call it after the last
// mutation of p.
func (e *Engine) SignProduct(key crypto.PrivateKey, p *product.Product) error {
	sig, err := e.Sign(key, p)
	if err != nil {
		return err
	}
	p.Signature = sig
	return nil
}

// Verify tries each candidate key in order and returns the first that
// verifies p's signature. A key that fails for any reason, including a panic
// inside the crypto library, is skipped. Running out of keys is a
// verification failure.
func (e *Engine) Verify(p *product.Product, keys []crypto.PublicKey) (crypto.PublicKey, error) {
	if p.Signature == "" {
		return nil, pkgerrors.ErrVerification.WithMessage("product has no signature")
	}

	sig, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil {
		return nil, pkgerrors.ErrVerification.WithCause(fmt.Errorf("signature is not base64: %w", err))
	}

	digest, err := Digest(p)
	if err != nil {
		return nil, pkgerrors.ErrVerification.WithCause(err)
	}

	for i, key := range keys {
		ok, err := verifyWithKey(key, digest, sig)
		if err != nil {
			e.logger.Debugw("Candidate key failed",
				"product_id", p.ID.String(),
				"key_index", i,
				"error", err)
			continue
		}
		if ok {
			return key, nil
		}
	}

	return nil, pkgerrors.ErrVerification.WithDetail("candidates", len(keys))
}

// VerifyProduct verifies p against the keys trusted for its source.
func (e *Engine) VerifyProduct(p *product.Product, source KeySource) (crypto.PublicKey, error) {
	return e.Verify(p, source.CandidateKeys(p.ID.Source))
}

func verifyWithKey(key crypto.PublicKey, digest, sig []byte) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("panic verifying with %T: %v", key, r)
		}
	}()

	switch k := key.(type) {
	case ed25519.PublicKey:
		if len(k) != ed25519.PublicKeySize {
			return false, fmt.Errorf("invalid ed25519 public key length %d", len(k))
		}
		return ed25519.Verify(k, digest, sig), nil
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(k, crypto.SHA256, digest, sig); err != nil {
			return false, nil
		}
		return true, nil
	case *ecdsa.PublicKey:
		return ecdsa.VerifyASN1(k, digest, sig), nil
	case ssh.CryptoPublicKey:
		return verifyWithKey(k.CryptoPublicKey(), digest, sig)
	case nil:
		return false, fmt.Errorf("nil public key")
	default:
		return false, fmt.Errorf("unsupported public key type %T", key)
	}
}
