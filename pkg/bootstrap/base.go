package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pdlbus/internal/config"
	"pdlbus/internal/constants"
	"pdlbus/internal/logger"
	"pdlbus/pkg/health"
	"pdlbus/pkg/middleware"
	"pdlbus/pkg/tracing"
)

// Base holds what every pdlbus service sets up the same way: logger,
// tracing, health registry and the HTTP server serving /health and
// /metrics.
type Base struct {
	Config      *config.Config
	Logger      logger.Logger
	ServiceName string
	Health      *health.CheckerRegistry
	Router      *gin.Engine

	tracerProvider *tracing.TracerProvider
	server         *http.Server
	stopOnce       sync.Once
	stopErr        error
}

func NewBase(cfg *config.Config, log logger.Logger, serviceName string) *Base {
	if sugared, ok := log.(*logger.SugaredLogger); ok {
		sugared.SetServiceName(serviceName)
	}
	return &Base{
		Config:      cfg,
		Logger:      log,
		ServiceName: serviceName,
		Health:      health.NewCheckerRegistry(),
	}
}

func (b *Base) InitTracing() error {
	tp, err := tracing.Init(b.Config.Tracing, b.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	b.tracerProvider = tp
	return nil
}

// InitHTTPServer builds the gin router with the common middleware and the
// /health and /metrics routes. Services add their own routes to Router.
func (b *Base) InitHTTPServer() {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(
		middleware.Recovery(b.Logger),
		middleware.RequestID(),
		tracing.GinMiddleware(b.ServiceName),
		middleware.AccessLog(b.Logger),
	)
	r.GET("/health", b.Health.Handler())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	b.Router = r
	b.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", b.Config.Server.Port),
		Handler:      r,
		ReadTimeout:  b.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: b.Config.Server.WriteTimeoutSeconds,
	}
}

// ServeHTTP serves until ctx is done, then shuts the server down.
func (b *Base) ServeHTTP(ctx context.Context) error {
	if b.server == nil {
		return nil
	}
	b.Logger.InfowCtx(ctx, "HTTP server starting", "port", b.Config.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return b.stopHTTP(ctx)
	}
}

func (b *Base) stopHTTP(ctx context.Context) error {
	b.stopOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
		defer cancel()
		if err := b.server.Shutdown(shutdownCtx); err != nil {
			b.stopErr = fmt.Errorf("HTTP server shutdown error: %w", err)
		}
	})
	return b.stopErr
}

// Shutdown stops the HTTP server, runs additionalShutdown and flushes
// traces, collecting every error.
func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.InfowCtx(ctx, "Shutting down application")

	var errs []error

	if b.server != nil {
		if err := b.stopHTTP(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if b.tracerProvider != nil {
		if err := b.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.InfowCtx(ctx, "Application exited successfully")
	return nil
}
