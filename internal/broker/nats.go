package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"pdlbus/internal/constants"
	"pdlbus/internal/logger"
	"pdlbus/pkg/tracing"
)

type NATSOptions struct {
	URL            string
	Stream         string
	ClientID       string
	Subjects       []string
	ConnectTimeout time.Duration
}

// NATSTransport stores subjects in a JetStream stream; bus sequence is the
// stream sequence.
type NATSTransport struct {
	opts   NATSOptions
	logger logger.Logger

	mu sync.Mutex
	nc *nats.Conn
	js jetstream.JetStream
}

func NewNATSTransport(opts NATSOptions, log logger.Logger) *NATSTransport {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = constants.NATSConnectTimeout
	}
	return &NATSTransport{opts: opts, logger: log}
}

func isNATSTimeout(err error) bool {
	return errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, jetstream.ErrNoStreamResponse)
}

func (t *NATSTransport) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name(t.opts.ClientID),
		nats.Timeout(t.opts.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				t.logger.Warnw("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			t.logger.Infow("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(t.opts.URL, opts...)
	if err != nil {
		return classify(fmt.Errorf("failed to connect to nats %s: %w", t.opts.URL, err), isNATSTimeout)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return classify(fmt.Errorf("failed to create jetstream context: %w", err))
	}

	if t.opts.Stream != "" && len(t.opts.Subjects) > 0 {
		if err := t.ensureStream(ctx, js); err != nil {
			nc.Close()
			return err
		}
	}

	t.mu.Lock()
	t.nc, t.js = nc, js
	t.mu.Unlock()

	t.logger.Infow("Connected to NATS",
		"url", nc.ConnectedUrl(),
		"stream", t.opts.Stream,
		"client_id", t.opts.ClientID,
	)
	return nil
}

// ensureStream creates the stream when missing. An existing stream is left
// as configured by its operator.
func (t *NATSTransport) ensureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.Stream(ctx, t.opts.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return classify(fmt.Errorf("failed to look up stream %s: %w", t.opts.Stream, err), isNATSTimeout)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     t.opts.Stream,
		Subjects: t.opts.Subjects,
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return classify(fmt.Errorf("failed to create stream %s: %w", t.opts.Stream, err), isNATSTimeout)
	}
	t.logger.Infow("Created JetStream stream", "stream", t.opts.Stream, "subjects", t.opts.Subjects)
	return nil
}

func (t *NATSTransport) jetStream() (jetstream.JetStream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.js == nil {
		return nil, errNotConnected
	}
	return t.js, nil
}

func (t *NATSTransport) Publish(ctx context.Context, subject string, data []byte) error {
	js, err := t.jetStream()
	if err != nil {
		return err
	}

	ctx, span := tracing.StartPublishSpan(ctx, subject)
	defer span.End()

	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range tracing.InjectHeaders(ctx, nil) {
		msg.Header.Set(k, v)
	}

	if _, err := js.PublishMsg(ctx, msg); err != nil {
		span.RecordError(err)
		return classify(fmt.Errorf("failed to publish to %s: %w", subject, err), isNATSTimeout)
	}
	return nil
}

func (t *NATSTransport) Subscribe(ctx context.Context, subject string, start uint64, handler Handler) (Subscription, error) {
	js, err := t.jetStream()
	if err != nil {
		return nil, err
	}

	stream := t.opts.Stream
	if stream == "" {
		stream, err = js.StreamNameBySubject(ctx, subject)
		if err != nil {
			return nil, classify(fmt.Errorf("no stream for subject %s: %w", subject, err), isNATSTimeout)
		}
	}

	consumer, err := js.OrderedConsumer(ctx, stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:    startSequence(start),
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create ordered consumer on %s: %w", stream, err), isNATSTimeout)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel)

	cc, err := consumer.Consume(func(m jetstream.Msg) {
		meta, err := m.Metadata()
		if err != nil {
			t.logger.Errorw("Message without jetstream metadata", "subject", subject, "error", err)
			return
		}

		msg := Message{
			Subject:   m.Subject(),
			Sequence:  meta.Sequence.Stream,
			Timestamp: meta.Timestamp.UTC(),
			Data:      m.Data(),
			Headers:   natsHeadersToMap(m.Headers()),
		}

		msgCtx, span := tracing.StartSpanFromHeaders(subCtx, "bus.consume", subject, msg.Sequence, msg.Headers)
		sub.deliver(msgCtx, msg, handler)
		span.End()
	})
	if err != nil {
		cancel()
		return nil, classify(fmt.Errorf("failed to consume %s: %w", subject, err), isNATSTimeout)
	}

	sub.stop = func() error {
		cc.Stop()
		return nil
	}

	t.logger.Infow("Started JetStream consumer",
		"stream", stream,
		"subject", subject,
		"start_sequence", startSequence(start),
	)
	return sub, nil
}

func (t *NATSTransport) Close() error {
	t.mu.Lock()
	nc := t.nc
	t.nc, t.js = nil, nil
	t.mu.Unlock()

	if nc == nil {
		return nil
	}
	if err := nc.Drain(); err != nil {
		nc.Close()
		return classify(err)
	}
	return nil
}

func natsHeadersToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
