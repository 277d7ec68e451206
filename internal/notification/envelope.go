package notification

import (
	"fmt"
	"net/url"
	"time"

	"pdlbus/internal/product"
	pkgerrors "pdlbus/pkg/errors"
)

// PlaceholderTrackerURL fills the legacy tracker field when the producer has
// none. Consumers ignore it.
const PlaceholderTrackerURL = "http://localhost/tracker/"

// Envelope announces that a product version is available at ProductURL.
// Expires is advisory; a consumer still delivers a stale envelope. Build it
// with New, which fills the placeholder tracker url; Encode rejects an
// envelope without one.
type Envelope struct {
	ID         product.ID
	Expires    time.Time
	TrackerURL *url.URL
	ProductURL *url.URL
}

// New builds an envelope that must not already be expired.
func New(id product.ID, expires time.Time, trackerURL, productURL *url.URL) (*Envelope, error) {
	return newAt(time.Now(), id, expires, trackerURL, productURL)
}

func newAt(now time.Time, id product.ID, expires time.Time, trackerURL, productURL *url.URL) (*Envelope, error) {
	if err := id.Validate(); err != nil {
		return nil, pkgerrors.ErrValidation.WithCause(err)
	}
	if productURL == nil || !productURL.IsAbs() {
		return nil, pkgerrors.ErrValidation.WithMessage("product url must be absolute")
	}
	if !expires.After(now) {
		return nil, pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("expiration %s is not in the future", product.FormatTime(expires)))
	}
	if trackerURL == nil {
		trackerURL = placeholderTracker()
	}

	return &Envelope{
		ID:         id,
		Expires:    product.Truncate(expires),
		TrackerURL: trackerURL,
		ProductURL: productURL,
	}, nil
}

func placeholderTracker() *url.URL {
	u, _ := url.Parse(PlaceholderTrackerURL)
	return u
}

func (e *Envelope) Expired(now time.Time) bool {
	return !e.Expires.After(now)
}

func (e *Envelope) Equal(other *Envelope) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.ID.Equal(other.ID) &&
		e.Expires.Equal(other.Expires) &&
		urlString(e.TrackerURL) == urlString(other.TrackerURL) &&
		urlString(e.ProductURL) == urlString(other.ProductURL)
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}
