package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"

	"pdlbus/internal/product"
	pkgerrors "pdlbus/pkg/errors"
)

type wireID struct {
	Source     *string `json:"source"`
	Type       *string `json:"type"`
	Code       *string `json:"code"`
	UpdateTime *string `json:"updatetime"`
}

type wireEnvelope struct {
	ID         *wireID `json:"id"`
	TrackerURL *string `json:"trackerURL"`
	Expires    *string `json:"expires"`
	URL        *string `json:"url"`
}

// Encode renders e as the wire JSON text. Field order is fixed. Every field
// is required, so Decode(Encode(e)) equals e; envelopes from New always carry
// a tracker url.
func Encode(e *Envelope) ([]byte, error) {
	if e == nil {
		return nil, pkgerrors.ErrEncoding.WithMessage("nil envelope")
	}
	if e.ProductURL == nil {
		return nil, pkgerrors.ErrEncoding.WithMessage("envelope has no product url")
	}

	if e.TrackerURL == nil {
		return nil, pkgerrors.ErrEncoding.WithMessage("envelope has no tracker url")
	}
	if err := e.ID.Validate(); err != nil {
		return nil, pkgerrors.ErrEncoding.WithCause(err)
	}
	tracker := e.TrackerURL

	source, typ, code := e.ID.Source, e.ID.Type, e.ID.Code
	updateTime := product.FormatTime(e.ID.UpdateTime)
	trackerText := tracker.String()
	expires := product.FormatTime(e.Expires)
	productURL := e.ProductURL.String()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(wireEnvelope{
		ID: &wireID{
			Source:     &source,
			Type:       &typ,
			Code:       &code,
			UpdateTime: &updateTime,
		},
		TrackerURL: &trackerText,
		Expires:    &expires,
		URL:        &productURL,
	})
	if err != nil {
		return nil, pkgerrors.ErrEncoding.WithCause(err)
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses wire JSON. Every field is required; anything missing or
// unparsable yields ErrMalformedEnvelope.
func Decode(data []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, malformed(err)
	}

	if w.ID == nil {
		return nil, missing("id")
	}
	required := []struct {
		field string
		value *string
	}{
		{"id.source", w.ID.Source},
		{"id.type", w.ID.Type},
		{"id.code", w.ID.Code},
		{"id.updatetime", w.ID.UpdateTime},
		{"trackerURL", w.TrackerURL},
		{"expires", w.Expires},
		{"url", w.URL},
	}
	for _, r := range required {
		if r.value == nil {
			return nil, missing(r.field)
		}
	}

	updateTime, err := product.ParseTime(*w.ID.UpdateTime)
	if err != nil {
		return nil, malformed(err)
	}
	id := product.NewID(*w.ID.Source, *w.ID.Type, *w.ID.Code, updateTime)
	if err := id.Validate(); err != nil {
		return nil, malformed(err)
	}

	expires, err := product.ParseTime(*w.Expires)
	if err != nil {
		return nil, malformed(err)
	}

	tracker, err := parseAbsoluteURL("trackerURL", *w.TrackerURL)
	if err != nil {
		return nil, err
	}
	productURL, err := parseAbsoluteURL("url", *w.URL)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		ID:         id,
		Expires:    product.Truncate(expires),
		TrackerURL: tracker,
		ProductURL: productURL,
	}, nil
}

func parseAbsoluteURL(field, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, malformed(fmt.Errorf("%s: %w", field, err))
	}
	if !u.IsAbs() {
		return nil, malformed(fmt.Errorf("%s: %q is not an absolute url", field, raw))
	}
	return u, nil
}

func missing(field string) error {
	return pkgerrors.ErrMalformedEnvelope.WithDetail("field", field).WithMessage("missing field " + field)
}

func malformed(cause error) error {
	return pkgerrors.ErrMalformedEnvelope.WithCause(cause)
}
