package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"pdlbus/internal/bridge"
	"pdlbus/internal/broker"
	"pdlbus/internal/config"
	"pdlbus/internal/constants"
	"pdlbus/internal/logger"
	"pdlbus/pkg/bootstrap"
	"pdlbus/pkg/metrics"
	"pdlbus/pkg/ratelimit"
)

type App struct {
	*bootstrap.Base
	handler *bridge.Handler
	limiter *ratelimit.Limiter
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base: bootstrap.NewBase(cfg, log, serviceName),
	}
}

func (a *App) Initialize(_ context.Context) error {
	if err := a.InitTracing(); err != nil {
		return err
	}

	metrics.RegisterBridgeMetrics()

	notification := a.Config.Notification
	a.handler = bridge.NewHandler(func(clientID string) (broker.Transport, error) {
		n := notification
		n.ClientID = clientID
		return broker.NewTransport(a.Config.Broker, n, a.Logger)
	}, bridge.HandlerOptions{
		DefaultSubject: notification.Subject,
		WriteTimeout:   a.Config.Bridge.WriteTimeout,
	}, a.Logger.Named("bridge"))

	a.InitHTTPServer()

	var mw []gin.HandlerFunc
	if a.Config.Bridge.RateLimit.Enabled {
		a.limiter = ratelimit.New(ratelimit.FromConfig(a.Config.Bridge.RateLimit))
		mw = append(mw, a.limiter.Middleware())
	}
	a.handler.Register(a.Router, a.Config.Bridge.Path, mw...)

	a.Logger.Infow("Bridge endpoint registered",
		"path", a.Config.Bridge.Path,
		"default_subject", notification.Subject,
		"rate_limited", a.limiter != nil,
	)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.ServeHTTP(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), constants.ShutdownTimeout)
		defer cancel()
		if err := a.handler.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warnw("Bridge sessions did not close in time", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		var errs []error
		if a.handler != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
			if err := a.handler.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("bridge sessions shutdown error: %w", err))
			}
			cancel()
		}
		if a.limiter != nil {
			a.limiter.Close()
		}
		return errs
	})
}
