package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

const (
	KeyTypeEd25519 = "ed25519"
	KeyTypeRSA     = "rsa"
	KeyTypeECDSA   = "ecdsa"

	rsaKeyBits = 3072
)

// GenerateKeyPair creates a new signing key of the given type.
func GenerateKeyPair(keyType string) (crypto.Signer, error) {
	switch strings.ToLower(keyType) {
	case KeyTypeEd25519, "":
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		return priv, nil
	case KeyTypeRSA:
		priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return nil, fmt.Errorf("failed to generate rsa key: %w", err)
		}
		return priv, nil
	case KeyTypeECDSA:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ecdsa key: %w", err)
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("unsupported key type %q", keyType)
	}
}

// LoadPrivateKey reads an OpenSSH, PKCS#1, PKCS#8 or SEC1 private key file.
func LoadPrivateKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", path, err)
	}
	return ParsePrivateKey(data)
}

func ParsePrivateKey(data []byte) (crypto.PrivateKey, error) {
	key, err := ssh.ParseRawPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	if k, ok := key.(*ed25519.PrivateKey); ok {
		return *k, nil
	}
	return key, nil
}

// MarshalPrivateKey encodes key as an OpenSSH PEM block.
func MarshalPrivateKey(key crypto.PrivateKey, comment string) ([]byte, error) {
	block, err := ssh.MarshalPrivateKey(key, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(block), nil
}

// ParsePublicKey accepts an authorized_keys line ("ssh-ed25519 AAAA... comment")
// or a PEM encoded PKIX public key.
func ParsePublicKey(text string) (crypto.PublicKey, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "-----BEGIN") {
		block, _ := pem.Decode([]byte(text))
		if block == nil {
			return nil, fmt.Errorf("failed to decode public key pem")
		}
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		return key, nil
	}

	sshKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	cryptoKey, ok := sshKey.(ssh.CryptoPublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type %s", sshKey.Type())
	}
	return cryptoKey.CryptoPublicKey(), nil
}

func LoadPublicKey(path string) (crypto.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key %s: %w", path, err)
	}
	return ParsePublicKey(string(data))
}

// MarshalPublicKey renders key as a single authorized_keys line.
func MarshalPublicKey(key crypto.PublicKey) (string, error) {
	sshKey, err := ssh.NewPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to convert public key: %w", err)
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshKey))), nil
}

// PublicKeyOf returns the public half of a private key.
func PublicKeyOf(key crypto.PrivateKey) (crypto.PublicKey, error) {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
	return signer.Public(), nil
}
