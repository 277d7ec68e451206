// Package sender publishes notification envelopes to one bus subject.
package sender

import (
	"context"
	"sync"
	"time"

	"pdlbus/internal/broker"
	"pdlbus/internal/config"
	"pdlbus/internal/constants"
	"pdlbus/internal/logger"
	"pdlbus/internal/notification"
	"pdlbus/internal/product"
	"pdlbus/internal/storage"
	pkgerrors "pdlbus/pkg/errors"
	"pdlbus/pkg/logging"
	"pdlbus/pkg/metrics"
)

type Options struct {
	ServerHost     string
	ServerPort     int
	ClusterID      string
	ClientID       string
	Subject        string
	ExpirationTTL  time.Duration
	PublishTimeout time.Duration
}

func OptionsFromConfig(n config.NotificationConfig) Options {
	return Options{
		ServerHost:     n.ServerHost,
		ServerPort:     n.ServerPort,
		ClusterID:      n.ClusterID,
		ClientID:       n.ClientID,
		Subject:        n.Subject,
		ExpirationTTL:  n.ExpirationTTL,
		PublishTimeout: n.PublishTimeout,
	}
}

// NotificationConfig converts o back to the config section consumed by
// broker.NewTransport.
func (o Options) NotificationConfig() config.NotificationConfig {
	return config.NotificationConfig{
		ServerHost:     o.ServerHost,
		ServerPort:     o.ServerPort,
		ClusterID:      o.ClusterID,
		ClientID:       o.ClientID,
		Subject:        o.Subject,
		ExpirationTTL:  o.ExpirationTTL,
		PublishTimeout: o.PublishTimeout,
	}
}

// TransportFactory builds the bus connection for configured options.
type TransportFactory func(opts Options) (broker.Transport, error)

// Sender owns exactly one transport connection.
type Sender struct {
	factory  TransportFactory
	resolver storage.Resolver
	logger   logger.Logger

	mu         sync.Mutex
	opts       Options
	configured bool
	transport  broker.Transport
}

func New(factory TransportFactory, resolver storage.Resolver, log logger.Logger) *Sender {
	return &Sender{
		factory:  factory,
		resolver: resolver,
		logger:   log,
	}
}

// Configure validates opts. A missing cluster id, client id or subject is a
// configuration error naming the key.
func (s *Sender) Configure(opts Options) error {
	if err := config.ValidateNotification(opts.NotificationConfig()); err != nil {
		return pkgerrors.ErrConfiguration.WithCause(err)
	}
	if opts.ExpirationTTL <= 0 {
		opts.ExpirationTTL = constants.DefaultExpirationTTL
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = constants.DefaultPublishTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts
	s.configured = true
	return nil
}

func (s *Sender) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

func (s *Sender) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return pkgerrors.ErrConfiguration.WithMessage("sender is not configured")
	}
	if s.transport != nil {
		return nil
	}

	transport, err := s.factory(s.opts)
	if err != nil {
		return pkgerrors.ErrConfiguration.WithCause(err)
	}
	if err := transport.Connect(ctx); err != nil {
		return err
	}

	s.transport = transport
	s.logger.Infow("Sender connected",
		"cluster_id", s.opts.ClusterID,
		"client_id", s.opts.ClientID,
		"subject", s.opts.Subject,
	)
	return nil
}

// Publish encodes env and waits for the bus to accept it.
func (s *Sender) Publish(ctx context.Context, env *notification.Envelope) error {
	s.mu.Lock()
	transport, opts := s.transport, s.opts
	s.mu.Unlock()

	ctx = logging.WithSubject(logging.WithProductID(ctx, env.ID.String()), opts.Subject)
	if transport == nil {
		err := pkgerrors.ErrTransport.WithMessage("sender is not connected")
		s.logger.ErrorwCtx(ctx, "Publish failed", "error", err)
		return err
	}

	data, err := notification.Encode(env)
	if err != nil {
		metrics.IncPublish(opts.Subject, metrics.StatusEncoding)
		s.logger.ErrorwCtx(ctx, "Failed to encode notification", "error", err)
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, opts.PublishTimeout)
	defer cancel()

	start := time.Now()
	err = transport.Publish(publishCtx, opts.Subject, data)
	metrics.ObservePublishDuration(opts.Subject, time.Since(start))
	if err == nil {
		metrics.IncPublish(opts.Subject, metrics.StatusSuccess)
		metrics.ObserveBusMessageSize(opts.Subject, "out", len(data))
		s.logger.DebugwCtx(ctx, "Notification published", "bytes", len(data))
		return nil
	}
	if pkgerrors.KindOf(err) == "" {
		err = pkgerrors.ErrTransport.WithCause(err)
	}

	switch pkgerrors.KindOf(err) {
	case pkgerrors.ErrTransportTimeout.Code:
		metrics.IncPublish(opts.Subject, metrics.StatusTimeout)
		s.logger.WarnwCtx(ctx, "Publish timed out, bus unreachable", "error", err, "timeout", opts.PublishTimeout)
	case pkgerrors.ErrInterrupted.Code:
		metrics.IncPublish(opts.Subject, metrics.StatusInterrupted)
		s.logger.WarnwCtx(ctx, "Publish interrupted", "error", err)
	case pkgerrors.ErrEncoding.Code:
		metrics.IncPublish(opts.Subject, metrics.StatusEncoding)
		s.logger.ErrorwCtx(ctx, "Bus rejected message encoding", "error", err)
	default:
		metrics.IncPublish(opts.Subject, metrics.StatusError)
		s.logger.ErrorwCtx(ctx, "Publish failed", "error", err)
	}
	return err
}

// SendProduct announces p at the URL the resolver assigns to it.
func (s *Sender) SendProduct(ctx context.Context, p *product.Product) (*notification.Envelope, error) {
	if s.resolver == nil {
		return nil, pkgerrors.ErrConfiguration.WithMessage("sender has no product url resolver")
	}
	productURL, err := s.resolver.ResolveProductURL(p.ID)
	if err != nil {
		return nil, err
	}

	env, err := notification.New(p.ID, time.Now().Add(s.Options().ExpirationTTL), p.TrackerURL, productURL)
	if err != nil {
		return nil, err
	}
	if err := s.Publish(ctx, env); err != nil {
		return nil, err
	}
	return env, nil
}

// Close releases the connection. Close errors are logged only.
func (s *Sender) Close() {
	s.mu.Lock()
	transport := s.transport
	s.transport = nil
	s.mu.Unlock()

	if transport == nil {
		return
	}
	if err := transport.Close(); err != nil {
		s.logger.Warnw("Error closing sender transport", "error", err)
		return
	}
	s.logger.Info("Sender closed")
}
