package signature

import (
	"crypto"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdlbus/internal/logger"
	"pdlbus/internal/product"
	pkgerrors "pdlbus/pkg/errors"
)

var updateTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testProduct(t *testing.T) *product.Product {
	t.Helper()
	p := product.New(product.NewID("us", "origin", "abc", updateTime))
	p.SetEventID("us", "abc")
	p.Properties["magnitude"] = "4.1"
	href, err := url.Parse("http://example.com/event/usabc")
	require.NoError(t, err)
	p.AddLink("related", href)
	p.SetContent(product.StdinPath, product.NewBytesContent("text/plain", updateTime, []byte("hello")))
	return p
}

type panickyKey struct{}

func (panickyKey) CryptoPublicKey() crypto.PublicKey {
	panic("broken key")
}

func TestDigest_Deterministic(t *testing.T) {
	a, err := Digest(testProduct(t))
	require.NoError(t, err)
	b, err := Digest(testProduct(t))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestDigest_NFCNormalised(t *testing.T) {
	composed := testProduct(t)
	composed.Properties["title"] = "Caf\u00e9"

	decomposed := testProduct(t)
	decomposed.Properties["title"] = "Cafe\u0301"

	a, err := Digest(composed)
	require.NoError(t, err)
	b, err := Digest(decomposed)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDigest_FieldBoundaries(t *testing.T) {
	a := testProduct(t)
	a.Properties["ab"] = "c"

	b := testProduct(t)
	b.Properties["a"] = "bc"

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)
}

func TestSignVerify(t *testing.T) {
	engine := NewEngine(logger.NopLogger())

	for _, keyType := range []string{KeyTypeEd25519, KeyTypeRSA, KeyTypeECDSA} {
		t.Run(keyType, func(t *testing.T) {
			priv, err := GenerateKeyPair(keyType)
			require.NoError(t, err)

			p := testProduct(t)
			require.NoError(t, engine.SignProduct(priv, p))
			require.NotEmpty(t, p.Signature)

			key, err := engine.Verify(p, []crypto.PublicKey{priv.Public()})
			require.NoError(t, err)
			assert.Equal(t, priv.Public(), key)
		})
	}
}

func TestVerify_MutationAfterSigning(t *testing.T) {
	engine := NewEngine(logger.NopLogger())
	priv, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(p *product.Product)
	}{
		{"property changed", func(p *product.Product) { p.Properties["magnitude"] = "4.2" }},
		{"property added", func(p *product.Product) { p.Properties["depth"] = "10" }},
		{"status changed", func(p *product.Product) { p.Status = product.StatusDelete }},
		{"content changed", func(p *product.Product) {
			p.SetContent(product.StdinPath, product.NewBytesContent("text/plain", updateTime, []byte("hellO")))
		}},
		{"link added", func(p *product.Product) {
			href, _ := url.Parse("http://example.com/other")
			p.AddLink("related", href)
		}},
		{"update time changed", func(p *product.Product) {
			p.ID = product.NewID("us", "origin", "abc", updateTime.Add(time.Millisecond))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProduct(t)
			require.NoError(t, engine.SignProduct(priv, p))

			tt.mutate(p)

			_, err := engine.Verify(p, []crypto.PublicKey{priv.Public()})
			require.Error(t, err)
			assert.ErrorIs(t, err, pkgerrors.ErrVerification)
		})
	}
}

func TestVerify_SkipsFailingKeys(t *testing.T) {
	engine := NewEngine(logger.NopLogger())

	signer, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)
	other, err := GenerateKeyPair(KeyTypeRSA)
	require.NoError(t, err)

	p := testProduct(t)
	require.NoError(t, engine.SignProduct(signer, p))

	keys := []crypto.PublicKey{panickyKey{}, other.Public(), signer.Public()}
	key, err := engine.Verify(p, keys)
	require.NoError(t, err)
	assert.Equal(t, signer.Public(), key)

	keys = []crypto.PublicKey{nil, []byte("not a key"), other.Public()}
	_, err = engine.Verify(p, keys)
	assert.ErrorIs(t, err, pkgerrors.ErrVerification)
}

func TestVerify_Unsigned(t *testing.T) {
	engine := NewEngine(logger.NopLogger())
	signer, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)

	_, err = engine.Verify(testProduct(t), []crypto.PublicKey{signer.Public()})
	assert.ErrorIs(t, err, pkgerrors.ErrVerification)

	p := testProduct(t)
	p.Signature = "%%%"
	_, err = engine.Verify(p, []crypto.PublicKey{signer.Public()})
	assert.ErrorIs(t, err, pkgerrors.ErrVerification)
}

func TestSign_UnsupportedKey(t *testing.T) {
	engine := NewEngine(logger.NopLogger())
	_, err := engine.Sign("secret", testProduct(t))
	assert.ErrorIs(t, err, pkgerrors.ErrSigning)
}

func TestKeyFiles_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	for _, keyType := range []string{KeyTypeEd25519, KeyTypeRSA, KeyTypeECDSA} {
		t.Run(keyType, func(t *testing.T) {
			priv, err := GenerateKeyPair(keyType)
			require.NoError(t, err)

			pemBytes, err := MarshalPrivateKey(priv, "test")
			require.NoError(t, err)
			path := filepath.Join(dir, keyType)
			require.NoError(t, os.WriteFile(path, pemBytes, 0o600))

			loaded, err := LoadPrivateKey(path)
			require.NoError(t, err)

			line, err := MarshalPublicKey(priv.Public())
			require.NoError(t, err)

			pub, err := ParsePublicKey(line)
			require.NoError(t, err)

			loadedPub, err := PublicKeyOf(loaded)
			require.NoError(t, err)
			assert.Equal(t, pub, loadedPub)
		})
	}
}

func TestConfigKeySource(t *testing.T) {
	usKey, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)
	anyKey, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)

	source := NewConfigKeySource(
		ProductKey{Name: "us", Key: usKey.Public(), Sources: []string{"US"}},
		ProductKey{Name: "any", Key: anyKey.Public()},
	)

	assert.Equal(t, []crypto.PublicKey{usKey.Public(), anyKey.Public()}, source.CandidateKeys("us"))
	assert.Equal(t, []crypto.PublicKey{anyKey.Public()}, source.CandidateKeys("ci"))
	assert.Equal(t, "us", source.Name(usKey.Public()))

	engine := NewEngine(logger.NopLogger())
	p := testProduct(t)
	require.NoError(t, engine.SignProduct(usKey, p))
	key, err := engine.VerifyProduct(p, source)
	require.NoError(t, err)
	assert.Equal(t, usKey.Public(), key)
}

func TestNewProductKey(t *testing.T) {
	priv, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)
	line, err := MarshalPublicKey(priv.Public())
	require.NoError(t, err)

	k, err := NewProductKey("us", line+" comment", nil)
	require.NoError(t, err)
	assert.True(t, k.AppliesTo("anything"))

	_, err = NewProductKey("bad", "ssh-ed25519 garbage", nil)
	assert.Error(t, err)
}
