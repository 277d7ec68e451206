package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"pdlbus/internal/constants"
	"pdlbus/internal/logger"
	"pdlbus/internal/product"
	pkgerrors "pdlbus/pkg/errors"
	"pdlbus/pkg/tracing"
)

const maxProductSize = 64 << 20

// Fetcher downloads product documents referenced by notification envelopes.
type Fetcher struct {
	client *http.Client
	logger logger.Logger
}

func NewFetcher(timeout time.Duration, log logger.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	return &Fetcher{client: tracing.HTTPClient(timeout), logger: log}
}

func (f *Fetcher) Fetch(ctx context.Context, u *url.URL) (*product.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, pkgerrors.ErrValidation.WithCause(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, pkgerrors.ErrInterrupted.WithCause(err)
		}
		return nil, pkgerrors.ErrServiceUnavailable.WithCause(fmt.Errorf("fetch %s: %w", u, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("product not found at %s", u))
	case resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax:
		return nil, pkgerrors.ErrServiceUnavailable.WithMessage(fmt.Sprintf("fetch %s: unexpected status %d", u, resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProductSize))
	if err != nil {
		return nil, pkgerrors.ErrServiceUnavailable.WithCause(fmt.Errorf("read %s: %w", u, err))
	}

	var p product.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, pkgerrors.ErrValidation.WithCause(fmt.Errorf("decode product from %s: %w", u, err))
	}

	f.logger.Debugw("Fetched product", "url", u.String(), "product_id", p.ID.String(), "bytes", len(data))
	return &p, nil
}
