// Package receiver subscribes to a bus subject from a durable cursor and
// hands each new notification to registered listeners.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pdlbus/internal/broker"
	"pdlbus/internal/config"
	"pdlbus/internal/index"
	"pdlbus/internal/logger"
	"pdlbus/internal/notification"
	"pdlbus/internal/tracking"
	pkgerrors "pdlbus/pkg/errors"
	"pdlbus/pkg/logging"
	"pdlbus/pkg/metrics"
)

type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Options struct {
	ServerHost    string
	ServerPort    int
	ClusterID     string
	ClientID      string
	Subject       string
	SweepInterval time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ServerHost:    cfg.Notification.ServerHost,
		ServerPort:    cfg.Notification.ServerPort,
		ClusterID:     cfg.Notification.ClusterID,
		ClientID:      cfg.Notification.ClientID,
		Subject:       cfg.Notification.Subject,
		SweepInterval: cfg.Index.SweepInterval,
	}
}

// Receiver owns one transport connection, one cursor store and one index.
// Messages are processed one at a time in bus order.
type Receiver struct {
	opts      Options
	transport broker.Transport
	cursors   tracking.Store
	index     index.Index
	logger    logger.Logger
	now       func() time.Time

	stateMu sync.Mutex
	state   State
	sub     broker.Subscription
	cancel  context.CancelFunc
	sweeper sync.WaitGroup

	mu        sync.Mutex
	listeners []Listener
	cursor    tracking.Cursor
}

func New(opts Options, transport broker.Transport, cursors tracking.Store, idx index.Index, log logger.Logger) (*Receiver, error) {
	err := config.ValidateNotification(config.NotificationConfig{
		ServerHost: opts.ServerHost,
		ServerPort: opts.ServerPort,
		ClusterID:  opts.ClusterID,
		ClientID:   opts.ClientID,
		Subject:    opts.Subject,
	})
	if err != nil {
		return nil, pkgerrors.ErrConfiguration.WithCause(err)
	}

	return &Receiver{
		opts:      opts,
		transport: transport,
		cursors:   cursors,
		index:     idx,
		logger:    log,
		now:       time.Now,
	}, nil
}

// AddListener registers l. Listeners run in registration order.
func (r *Receiver) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Receiver) State() State {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.state
}

// Cursor returns the last processed position.
func (r *Receiver) Cursor() tracking.Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

func (r *Receiver) setState(s State) {
	r.stateMu.Lock()
	r.state = s
	r.stateMu.Unlock()
}

// Start loads the cursor, connects and subscribes strictly after the last
// processed sequence.
func (r *Receiver) Start(ctx context.Context) error {
	r.stateMu.Lock()
	if r.state != Stopped {
		state := r.state
		r.stateMu.Unlock()
		return fmt.Errorf("receiver cannot start while %s", state)
	}
	r.state = Starting
	r.stateMu.Unlock()

	cursor := r.loadCursor(ctx)
	r.mu.Lock()
	r.cursor = cursor
	r.mu.Unlock()

	if err := r.transport.Connect(ctx); err != nil {
		r.setState(Stopped)
		return err
	}

	// The subscription outlives the caller's deadline.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = logging.WithSubject(runCtx, r.opts.Subject)

	sub, err := r.transport.Subscribe(runCtx, r.opts.Subject, cursor.Next(), r.handle)
	if err != nil {
		cancel()
		if closeErr := r.transport.Close(); closeErr != nil {
			r.logger.Warnw("Error closing transport after failed subscribe", "error", closeErr)
		}
		r.setState(Stopped)
		return err
	}

	r.stateMu.Lock()
	r.sub = sub
	r.cancel = cancel
	r.state = Running
	r.stateMu.Unlock()

	if r.opts.SweepInterval > 0 && r.index != nil {
		r.sweeper.Add(1)
		go r.sweepLoop(runCtx)
	}

	r.logger.Infow("Receiver started",
		"cluster_id", r.opts.ClusterID,
		"client_id", r.opts.ClientID,
		"subject", r.opts.Subject,
		"start_sequence", cursor.Next(),
	)
	return nil
}

func (r *Receiver) loadCursor(ctx context.Context) tracking.Cursor {
	fresh := tracking.Cursor{
		ServerHost: r.opts.ServerHost,
		ServerPort: r.opts.ServerPort,
		ClusterID:  r.opts.ClusterID,
		ClientID:   r.opts.ClientID,
		Subject:    r.opts.Subject,
	}

	saved, err := r.cursors.Load(ctx)
	switch {
	case errors.Is(err, tracking.ErrNoCursor):
		r.logger.Infow("No tracking cursor, starting at the beginning of the subject")
		return fresh
	case err != nil:
		r.logger.Warnw("Unreadable tracking cursor, starting at the beginning of the subject", "error", err)
		return fresh
	case !saved.Matches(r.opts.ClusterID, r.opts.ClientID, r.opts.Subject):
		r.logger.Warnw("Ignoring tracking cursor recorded for another subscription",
			"cursor_cluster_id", saved.ClusterID,
			"cursor_client_id", saved.ClientID,
			"cursor_subject", saved.Subject,
		)
		return fresh
	}

	fresh.Sequence = saved.Sequence
	return fresh
}

// Stop closes the subscription, waiting for an in-flight message, then the
// connection. It always leaves the receiver Stopped.
func (r *Receiver) Stop(_ context.Context) {
	r.stateMu.Lock()
	if r.state != Running {
		r.stateMu.Unlock()
		return
	}
	r.state = Stopping
	sub, cancel := r.sub, r.cancel
	r.sub, r.cancel = nil, nil
	r.stateMu.Unlock()

	if err := sub.Close(); err != nil {
		r.logger.Warnw("Error closing subscription", "error", err)
	}
	cancel()
	r.sweeper.Wait()

	if err := r.transport.Close(); err != nil {
		r.logger.Warnw("Error closing transport", "error", err)
	}

	r.setState(Stopped)
	r.logger.Infow("Receiver stopped", "sequence", r.Cursor().Sequence)
}

func (r *Receiver) handle(ctx context.Context, msg broker.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	status := r.process(ctx, msg)
	metrics.IncNotification(r.opts.Subject, status)
	metrics.ObserveNotificationDuration(time.Since(start), status)

	// Stop may cancel ctx while the last message is in flight.
	r.cursor.Sequence = msg.Sequence
	if err := r.cursors.Save(context.WithoutCancel(ctx), r.cursor); err != nil {
		r.logger.ErrorwCtx(ctx, "Failed to save tracking cursor", "sequence", msg.Sequence, "error", err)
	}
	metrics.SetCursorSequence(r.opts.Subject, msg.Sequence)
}

// process runs under r.mu and returns the metric status of msg.
func (r *Receiver) process(ctx context.Context, msg broker.Message) string {
	metrics.ObserveBusMessageSize(r.opts.Subject, "in", len(msg.Data))

	env, err := notification.Decode(msg.Data)
	if err != nil {
		r.logger.WarnwCtx(ctx, "Skipping malformed notification",
			"sequence", msg.Sequence,
			"error", err,
		)
		return metrics.StatusMalformed
	}

	ctx = logging.WithProductID(ctx, env.ID.String())

	if env.Expired(r.now()) {
		metrics.IncNotificationExpired(r.opts.Subject)
		r.logger.WarnwCtx(ctx, "Received expired notification",
			"sequence", msg.Sequence,
			"expires", env.Expires,
		)
	}

	if r.index != nil {
		seen, err := r.index.Lookup(ctx, env.ID)
		if err != nil {
			r.logger.WarnwCtx(ctx, "Index lookup failed, treating notification as new", "error", err)
		} else if seen {
			r.logger.DebugwCtx(ctx, "Dropping duplicate notification", "sequence", msg.Sequence)
			return metrics.StatusDuplicate
		}
	}

	ok := true
	for _, l := range r.listeners {
		name := listenerName(l)
		err := pkgerrors.Safely(func() error {
			return l.OnNotification(ctx, env)
		})
		if err != nil {
			ok = false
			metrics.IncListenerError(name)
			r.logger.ErrorwCtx(ctx, "Listener failed",
				"listener", name,
				"sequence", msg.Sequence,
				"panic", pkgerrors.IsPanic(err),
				"error", err,
			)
		}
	}

	if !ok {
		return metrics.StatusListenerError
	}

	if r.index != nil {
		if err := r.index.Record(ctx, env); err != nil {
			r.logger.ErrorwCtx(ctx, "Failed to record notification", "error", err)
		}
	}
	return metrics.StatusDelivered
}

func (r *Receiver) sweepLoop(ctx context.Context) {
	defer r.sweeper.Done()

	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep removes expired entries from the index.
func (r *Receiver) Sweep(ctx context.Context) {
	removed, err := r.index.RemoveExpired(ctx, r.now())
	if err != nil {
		r.logger.Warnw("Index sweep failed", "error", err)
		return
	}
	if removed > 0 {
		r.logger.Infow("Removed expired notifications from index", "removed", removed)
	}
}
