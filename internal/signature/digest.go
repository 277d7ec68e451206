package signature

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"sort"

	"golang.org/x/text/unicode/norm"

	"pdlbus/internal/product"
)

// DigestVersion prefixes every digest stream. Changing anything written by
// Digest invalidates all existing signatures, so bump this tag when you do.
const DigestVersion = "pdlbus-product-digest/v1"

type digestWriter struct {
	h   hash.Hash
	buf [8]byte
}

func (w *digestWriter) writeBytes(b []byte) {
	binary.BigEndian.PutUint64(w.buf[:], uint64(len(b)))
	w.h.Write(w.buf[:])
	w.h.Write(b)
}

func (w *digestWriter) writeString(s string) {
	w.writeBytes([]byte(norm.NFC.String(s)))
}

func (w *digestWriter) writeInt(v int64) {
	binary.BigEndian.PutUint64(w.buf[:], uint64(v))
	w.h.Write(w.buf[:])
}

// Digest computes the SHA-256 of the canonical encoding of p. Every string is
// length-prefixed and NFC-normalised and every collection is written in
// sorted key order, so two products with equal content always hash equally
// regardless of map iteration or unicode composition.
func Digest(p *product.Product) ([]byte, error) {
	w := &digestWriter{h: sha256.New()}

	w.writeString(DigestVersion)

	w.writeString(p.ID.Source)
	w.writeString(p.ID.Type)
	w.writeString(p.ID.Code)
	w.writeInt(p.ID.UpdateTime.UnixMilli())

	w.writeString(p.Status)

	w.writeInt(int64(len(p.Properties)))
	for _, key := range sortedKeys(p.Properties) {
		w.writeString(key)
		w.writeString(p.Properties[key])
	}

	w.writeInt(int64(len(p.Links)))
	for _, relation := range sortedKeys(p.Links) {
		hrefs := p.Links[relation]
		w.writeString(relation)
		w.writeInt(int64(len(hrefs)))
		for _, href := range hrefs {
			w.writeString(href.String())
		}
	}

	w.writeInt(int64(len(p.Contents)))
	for _, path := range sortedKeys(p.Contents) {
		content := p.Contents[path]
		data, err := product.ReadAll(content)
		if err != nil {
			return nil, fmt.Errorf("failed to read content %q: %w", path, err)
		}
		w.writeString(path)
		w.writeString(content.ContentType())
		w.writeInt(content.LastModified().UnixMilli())
		w.writeBytes(data)
	}

	return w.h.Sum(nil), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
