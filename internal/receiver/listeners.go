package receiver

import (
	"context"
	"fmt"
	"net/url"

	"pdlbus/internal/logger"
	"pdlbus/internal/notification"
	"pdlbus/internal/product"
	"pdlbus/internal/signature"
	"pdlbus/pkg/cel"
	pkgerrors "pdlbus/pkg/errors"
	"pdlbus/pkg/metrics"
)

// Listener receives each new notification once per receiver.
type Listener interface {
	OnNotification(ctx context.Context, env *notification.Envelope) error
}

type ListenerFunc func(ctx context.Context, env *notification.Envelope) error

func (f ListenerFunc) OnNotification(ctx context.Context, env *notification.Envelope) error {
	return f(ctx, env)
}

type namedListener interface {
	Name() string
}

func listenerName(l Listener) string {
	if n, ok := l.(namedListener); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", l)
}

type LoggingListener struct {
	logger logger.Logger
}

func NewLoggingListener(log logger.Logger) *LoggingListener {
	return &LoggingListener{logger: log}
}

func (l *LoggingListener) Name() string { return "logging" }

func (l *LoggingListener) OnNotification(ctx context.Context, env *notification.Envelope) error {
	l.logger.InfowCtx(ctx, "Notification received",
		"source", env.ID.Source,
		"type", env.ID.Type,
		"code", env.ID.Code,
		"update_time", env.ID.UpdateTime,
		"expires", env.Expires,
		"product_url", env.ProductURL.String(),
	)
	return nil
}

// FilterListener passes only notifications matching a CEL expression on to
// next.
type FilterListener struct {
	filter *cel.Filter
	next   Listener
	logger logger.Logger
}

func NewFilterListener(filter *cel.Filter, next Listener, log logger.Logger) *FilterListener {
	return &FilterListener{filter: filter, next: next, logger: log}
}

func (l *FilterListener) Name() string { return "filter:" + listenerName(l.next) }

func (l *FilterListener) OnNotification(ctx context.Context, env *notification.Envelope) error {
	ok, err := l.filter.Match(ctx, env)
	if err != nil {
		return fmt.Errorf("filter %q: %w", l.filter.String(), err)
	}
	if !ok {
		l.logger.DebugwCtx(ctx, "Notification filtered out", "filter", l.filter.String())
		return nil
	}
	return l.next.OnNotification(ctx, env)
}

type Publisher interface {
	Publish(ctx context.Context, env *notification.Envelope) error
}

// RelayListener republishes every notification through a sender configured
// for another subject.
type RelayListener struct {
	publisher Publisher
}

func NewRelayListener(p Publisher) *RelayListener {
	return &RelayListener{publisher: p}
}

func (l *RelayListener) Name() string { return "relay" }

func (l *RelayListener) OnNotification(ctx context.Context, env *notification.Envelope) error {
	return l.publisher.Publish(ctx, env)
}

type ProductFetcher interface {
	Fetch(ctx context.Context, u *url.URL) (*product.Product, error)
}

// VerifyingListener downloads the announced product and checks its
// signature before handing it to onVerified.
type VerifyingListener struct {
	fetcher    ProductFetcher
	engine     *signature.Engine
	keys       signature.KeySource
	onVerified func(ctx context.Context, p *product.Product) error
	logger     logger.Logger
}

func NewVerifyingListener(
	fetcher ProductFetcher,
	engine *signature.Engine,
	keys signature.KeySource,
	onVerified func(ctx context.Context, p *product.Product) error,
	log logger.Logger,
) *VerifyingListener {
	return &VerifyingListener{
		fetcher:    fetcher,
		engine:     engine,
		keys:       keys,
		onVerified: onVerified,
		logger:     log,
	}
}

func (l *VerifyingListener) Name() string { return "verify" }

func (l *VerifyingListener) OnNotification(ctx context.Context, env *notification.Envelope) error {
	p, err := l.fetcher.Fetch(ctx, env.ProductURL)
	if err != nil {
		metrics.IncVerification("fetch_error")
		return err
	}

	if !p.ID.Equal(env.ID) {
		metrics.IncVerification("id_mismatch")
		return pkgerrors.ErrVerification.
			WithMessage("fetched product does not match notification").
			WithDetail("fetched_id", p.ID.String())
	}

	if _, err := l.engine.VerifyProduct(p, l.keys); err != nil {
		metrics.IncVerification("failed")
		l.logger.WarnwCtx(ctx, "Product signature verification failed", "error", err)
		return err
	}
	metrics.IncVerification("verified")

	if l.onVerified == nil {
		return nil
	}
	return l.onVerified(ctx, p)
}
