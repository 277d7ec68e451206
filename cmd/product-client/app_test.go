package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdlbus/internal/broker"
	"pdlbus/internal/config"
	"pdlbus/internal/logger"
	"pdlbus/internal/notification"
	"pdlbus/internal/product"
	"pdlbus/internal/storage"
	pkgerrors "pdlbus/pkg/errors"
)

func TestProductFlags_Build(t *testing.T) {
	content := filepath.Join(t.TempDir(), "quakeml.xml")
	require.NoError(t, os.WriteFile(content, []byte("<q/>"), 0o644))

	p, err := productFlags{
		Source:      "us",
		Type:        "origin",
		Code:        "abc",
		UpdateTime:  "2024-01-01T00:00:00.000Z",
		Status:      "delete",
		Properties:  []string{"magnitude=4.1", "eventsource=us"},
		Links:       []string{"related=http://example.com/event"},
		Content:     content,
		ContentType: "application/xml",
	}.build()
	require.NoError(t, err)

	assert.Equal(t, "urn:usgs-product:us:origin:abc:1704067200000", p.ID.String())
	assert.True(t, p.IsDeleted())
	assert.Equal(t, "4.1", p.Properties["magnitude"])
	require.Len(t, p.Links["related"], 1)
	assert.Equal(t, "application/xml", p.Contents["quakeml.xml"].ContentType())
}

func TestProductFlags_BuildErrors(t *testing.T) {
	valid := productFlags{Source: "us", Type: "origin", Code: "abc"}

	tests := []struct {
		name   string
		mutate func(*productFlags)
	}{
		{"missing code", func(f *productFlags) { f.Code = "" }},
		{"bad time", func(f *productFlags) { f.UpdateTime = "yesterday" }},
		{"bad property", func(f *productFlags) { f.Properties = []string{"novalue"} }},
		{"relative link", func(f *productFlags) { f.Links = []string{"related=/event"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.mutate(&f)
			_, err := f.build()
			assert.Error(t, err)
		})
	}
}

func TestKeygenSignVerify(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	c := NewClient(logger.NopLogger(), &out)

	keyFile := filepath.Join(dir, "key")
	require.NoError(t, c.Keygen("ed25519", keyFile))
	assert.Contains(t, out.String(), "ssh-ed25519 ")

	p := product.New(product.NewID("us", "origin", "abc", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, c.Sign(p, keyFile))

	keys, err := keySource([]string{keyFile + ".pub"}, nil)
	require.NoError(t, err)
	_, err = c.Verify(p, keys)
	require.NoError(t, err)

	p.Properties["magnitude"] = "9.9"
	_, err = c.Verify(p, keys)
	assert.ErrorIs(t, err, pkgerrors.ErrVerification)

	_, err = keySource(nil, nil)
	assert.Error(t, err)
}

func TestSend_MemoryBus(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Broker: config.BrokerConfig{Type: "memory"},
		Notification: config.NotificationConfig{
			ClusterID: "pdl",
			ClientID:  "product-client",
			Subject:   "product-client-test",
		},
	}

	before := broker.SharedBus().Len("product-client-test")
	var out bytes.Buffer
	p := product.New(product.NewID("us", "origin", "abc", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	env, err := NewClient(logger.NopLogger(), &out).Send(context.Background(), cfg, p, SendOptions{StorageDir: dir})
	require.NoError(t, err)

	assert.Equal(t, before+1, broker.SharedBus().Len("product-client-test"))
	assert.Equal(t, "http://localhost/products/us/origin/abc/1704067200000.json", env.ProductURL.String())

	decoded, err := notification.Decode(bytes.TrimSpace(out.Bytes()))
	require.NoError(t, err)
	assert.True(t, env.Equal(decoded))

	stored, err := storage.NewDirectoryStore(dir).Load(p.ID)
	require.NoError(t, err)
	assert.True(t, stored.ID.Equal(p.ID))
}

func TestWriteProduct(t *testing.T) {
	var buf bytes.Buffer
	p := product.New(product.NewID("us", "origin", "abc", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, writeProduct(&buf, p))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "UPDATE", doc["status"])
}
