package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"pdlbus/internal/broker"
	"pdlbus/internal/config"
	"pdlbus/internal/index"
	"pdlbus/internal/logger"
	"pdlbus/internal/product"
	"pdlbus/internal/receiver"
	"pdlbus/internal/sender"
	"pdlbus/internal/signature"
	"pdlbus/internal/storage"
	"pdlbus/internal/tracking"
	"pdlbus/pkg/bootstrap"
	"pdlbus/pkg/cel"
	"pdlbus/pkg/health"
	"pdlbus/pkg/logging"
	"pdlbus/pkg/metrics"
	"pdlbus/pkg/retry"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	index       index.Index
	receiver    *receiver.Receiver
	relay       *sender.Sender
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log, serviceName),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.InitTracing(); err != nil {
		return err
	}

	metrics.RegisterReceiverMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	clients, err := a.dbConnector.Connect(ctx, a.Health)
	if err != nil {
		return fmt.Errorf("failed to connect index database: %w", err)
	}

	idx, err := index.Open(ctx, a.Config, clients, a.Logger.Named("index"))
	if err != nil {
		return err
	}
	a.index = idx

	transport, err := broker.NewTransport(a.Config.Broker, a.Config.Notification, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	a.receiver, err = receiver.New(
		receiver.OptionsFromConfig(a.Config),
		transport,
		tracking.NewFileStore(a.Config.Notification.TrackingFile),
		idx,
		a.Logger.Named("receiver"),
	)
	if err != nil {
		return err
	}

	if err := a.initListeners(); err != nil {
		return fmt.Errorf("failed to initialize listeners: %w", err)
	}

	a.Health.Register(health.NewCheckFunc("receiver", func(context.Context) error {
		if state := a.receiver.State(); state != receiver.Running {
			return fmt.Errorf("receiver is %s", state)
		}
		return nil
	}))
	a.Health.RegisterOptional(health.NewCheckFunc("index", func(ctx context.Context) error {
		_, err := a.index.Count(ctx)
		return err
	}))

	a.InitHTTPServer()
	return nil
}

// initListeners registers the logging listener and, when configured, the
// relay and verification listeners behind the CEL filter.
func (a *App) initListeners() error {
	a.receiver.AddListener(receiver.NewLoggingListener(a.Logger.Named("notifications")))

	var downstream []receiver.Listener

	if subject := a.Config.Receiver.RelaySubject; subject != "" {
		metrics.RegisterPublisherMetrics()
		resolver, err := storage.NewTemplateResolver(a.Config.Storage.URLTemplate)
		if err != nil {
			return err
		}
		a.relay = sender.New(func(o sender.Options) (broker.Transport, error) {
			return broker.NewTransport(a.Config.Broker, o.NotificationConfig(), a.Logger)
		}, resolver, a.Logger.Named("relay"))

		opts := sender.OptionsFromConfig(a.Config.Notification)
		opts.ClientID += "-relay"
		opts.Subject = subject
		if err := a.relay.Configure(opts); err != nil {
			return err
		}
		downstream = append(downstream, receiver.NewRelayListener(a.relay))
	}

	if a.Config.Receiver.Verify {
		keys, err := signature.KeySourceFromConfig(a.Config.Signature)
		if err != nil {
			return err
		}
		verified := a.Logger.Named("verified")
		downstream = append(downstream, receiver.NewVerifyingListener(
			storage.NewFetcher(a.Config.Storage.FetchTimeout, a.Logger.Named("fetcher")),
			signature.NewEngine(a.Logger.Named("signature")),
			keys,
			func(ctx context.Context, p *product.Product) error {
				verified.InfowCtx(ctx, "Verified product", "status", p.Status, "deleted", p.IsDeleted())
				return nil
			},
			a.Logger.Named("verify"),
		))
	}

	var filter *cel.Filter
	if expr := a.Config.Receiver.Filter; expr != "" {
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return err
		}
		if filter, err = evaluator.CompileFilter(expr); err != nil {
			return err
		}
	}

	for _, l := range downstream {
		if filter != nil {
			l = receiver.NewFilterListener(filter, l, a.Logger.Named("filter"))
		}
		a.receiver.AddListener(l)
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.ServeHTTP(gCtx)
	})

	g.Go(func() error {
		if err := a.start(gCtx); err != nil {
			return err
		}
		a.Logger.InfowCtx(gCtx, "Service running")
		<-gCtx.Done()
		return nil
	})

	return g.Wait()
}

// start connects the relay sender and the receiver, retrying transport
// failures with the broker retry policy.
func (a *App) start(ctx context.Context) error {
	policy := retry.FromConfig(a.Config.Broker.Kafka.Retry)
	onRetry := func(operation string) func(int, error, time.Duration) {
		return func(attempt int, err error, next time.Duration) {
			metrics.IncRetryAttempt(serviceName, operation)
			a.Logger.WarnwCtx(ctx, "Connection attempt failed, retrying",
				"operation", operation,
				"attempt", attempt,
				"next_delay", next,
				"error", err,
			)
		}
	}

	if a.relay != nil {
		if err := retry.RetryWithCallback(ctx, policy, func() error {
			return a.relay.Connect(ctx)
		}, onRetry("relay_connect")); err != nil {
			return fmt.Errorf("failed to connect relay sender: %w", err)
		}
	}

	startCtx := logging.WithServiceName(ctx, serviceName)
	return retry.RetryWithCallback(ctx, policy, func() error {
		return a.receiver.Start(startCtx)
	}, onRetry("receiver_start"))
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		var errs []error

		if a.receiver != nil {
			a.receiver.Stop(ctx)
		}
		if a.relay != nil {
			a.relay.Close()
		}
		if a.index != nil {
			if err := a.index.Close(); err != nil {
				errs = append(errs, fmt.Errorf("index close error: %w", err))
			}
		}
		errs = append(errs, a.dbConnector.Close(ctx)...)
		return errs
	})
}
