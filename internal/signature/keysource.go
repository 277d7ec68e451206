package signature

import (
	"crypto"
	"fmt"
	"strings"

	"pdlbus/internal/config"
)

// KeySource yields the public keys trusted to sign products from a source.
type KeySource interface {
	CandidateKeys(source string) []crypto.PublicKey
}

// ProductKey is a trusted key, optionally limited to a set of product
// sources. A key with no sources is trusted for every source.
type ProductKey struct {
	Name    string
	Key     crypto.PublicKey
	Sources []string
}

func NewProductKey(name, publicKey string, sources []string) (ProductKey, error) {
	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return ProductKey{}, fmt.Errorf("key %s: %w", name, err)
	}
	return ProductKey{Name: name, Key: key, Sources: sources}, nil
}

func (k ProductKey) AppliesTo(source string) bool {
	if len(k.Sources) == 0 {
		return true
	}
	for _, s := range k.Sources {
		if strings.EqualFold(s, source) {
			return true
		}
	}
	return false
}

type ConfigKeySource struct {
	keys []ProductKey
}

func NewConfigKeySource(keys ...ProductKey) *ConfigKeySource {
	return &ConfigKeySource{keys: keys}
}

// CandidateKeys returns matching keys in configuration order.
func (s *ConfigKeySource) CandidateKeys(source string) []crypto.PublicKey {
	var keys []crypto.PublicKey
	for _, k := range s.keys {
		if k.AppliesTo(source) {
			keys = append(keys, k.Key)
		}
	}
	return keys
}

// KeySourceFromConfig parses every key of the signature section.
func KeySourceFromConfig(cfg config.SignatureConfig) (*ConfigKeySource, error) {
	keys := make([]ProductKey, 0, len(cfg.Keys))
	for _, k := range cfg.Keys {
		key, err := NewProductKey(k.Name, k.PublicKey, k.Sources)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return NewConfigKeySource(keys...), nil
}

// Name looks up the configured name of key, for log output.
func (s *ConfigKeySource) Name(key crypto.PublicKey) string {
	type equaler interface{ Equal(crypto.PublicKey) bool }
	for _, k := range s.keys {
		if e, ok := k.Key.(equaler); ok && e.Equal(key) {
			return k.Name
		}
	}
	return ""
}
