// Package bridge forwards one bus subject to one external consumer, wrapping
// each message in a frame carrying its bus sequence and timestamp.
package bridge

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"pdlbus/internal/broker"
	"pdlbus/internal/logger"
	"pdlbus/pkg/logging"
	"pdlbus/pkg/metrics"
)

// Frame is the unit sent downstream. Timestamp is unix nanoseconds.
type Frame struct {
	Sequence  uint64          `json:"sequence"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Consumer receives frames. Send is never called concurrently.
type Consumer interface {
	Send(ctx context.Context, f Frame) error
	Closed() bool
}

type Options struct {
	Subject       string
	StartSequence uint64
	// Structured re-parses each payload as JSON instead of sending it as a
	// string.
	Structured bool
}

type Bridge struct {
	opts      Options
	transport broker.Transport
	consumer  Consumer
	logger    logger.Logger

	mu  sync.Mutex
	sub broker.Subscription
}

func New(opts Options, transport broker.Transport, consumer Consumer, log logger.Logger) *Bridge {
	return &Bridge{
		opts:      opts,
		transport: transport,
		consumer:  consumer,
		logger:    log,
	}
}

// Start connects and subscribes at the configured start sequence.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.transport.Connect(ctx); err != nil {
		return err
	}

	runCtx := logging.WithSubject(context.WithoutCancel(ctx), b.opts.Subject)
	sub, err := b.transport.Subscribe(runCtx, b.opts.Subject, b.opts.StartSequence, b.forward)
	if err != nil {
		if closeErr := b.transport.Close(); closeErr != nil {
			b.logger.Warnw("Error closing transport after failed subscribe", "error", closeErr)
		}
		return err
	}

	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()

	metrics.BridgeSessionsActive.Inc()
	b.logger.Infow("Bridge started",
		"subject", b.opts.Subject,
		"start_sequence", b.opts.StartSequence,
		"structured", b.opts.Structured,
	)
	return nil
}

// Stop closes the subscription and then the connection. Errors are logged.
func (b *Bridge) Stop() {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()

	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		b.logger.Warnw("Error closing bridge subscription", "error", err)
	}
	if err := b.transport.Close(); err != nil {
		b.logger.Warnw("Error closing bridge transport", "error", err)
	}
	metrics.BridgeSessionsActive.Dec()
	b.logger.Infow("Bridge stopped", "subject", b.opts.Subject)
}

func (b *Bridge) forward(ctx context.Context, msg broker.Message) {
	if b.consumer.Closed() {
		metrics.IncBridgeFrame("closed")
		b.logger.DebugwCtx(ctx, "Consumer closed, dropping message", "sequence", msg.Sequence)
		return
	}

	frame, err := BuildFrame(msg, b.opts.Structured)
	if err != nil {
		b.logger.WarnwCtx(ctx, "Payload is not JSON, forwarding as string",
			"sequence", msg.Sequence,
			"error", err,
		)
	}

	if err := b.consumer.Send(ctx, frame); err != nil {
		metrics.IncBridgeFrame("error")
		b.logger.ErrorwCtx(ctx, "Failed to forward message", "sequence", msg.Sequence, "error", err)
		return
	}
	metrics.IncBridgeFrame("sent")
}

// BuildFrame wraps msg. In structured mode a payload that is not valid JSON
// is sent as a string and the parse error is returned with the frame.
func BuildFrame(msg broker.Message, structured bool) (Frame, error) {
	frame := Frame{
		Sequence:  msg.Sequence,
		Timestamp: msg.Timestamp.UnixNano(),
	}

	var parseErr error
	if structured {
		if json.Valid(msg.Data) {
			frame.Data = append(json.RawMessage(nil), msg.Data...)
			return frame, nil
		}
		parseErr = fmt.Errorf("invalid json payload of %d bytes", len(msg.Data))
	}

	data, err := json.Marshal(string(msg.Data))
	if err != nil {
		return frame, err
	}
	frame.Data = data
	return frame, parseErr
}

// CorrelationID derives the bus client id of a session.
func CorrelationID(sessionID string) string {
	sum := sha1.Sum([]byte(sessionID))
	return hex.EncodeToString(sum[:])
}
