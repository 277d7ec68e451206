package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"pdlbus/internal/constants"
	"pdlbus/internal/logger"
	"pdlbus/pkg/tracing"
)

type KafkaOptions struct {
	Brokers   []string
	Partition int
	ClientID  string
}

// KafkaTransport maps each subject onto one partition of a topic with the
// same name. Bus sequence N is partition offset N-1.
type KafkaTransport struct {
	opts   KafkaOptions
	logger logger.Logger
	dialer *kafka.Dialer

	mu     sync.Mutex
	writer *kafka.Writer
}

func NewKafkaTransport(opts KafkaOptions, log logger.Logger) *KafkaTransport {
	return &KafkaTransport{
		opts:   opts,
		logger: log,
		dialer: &kafka.Dialer{
			ClientID:  opts.ClientID,
			Timeout:   constants.KafkaWriteTimeout,
			DualStack: true,
		},
	}
}

func (t *KafkaTransport) Connect(ctx context.Context) error {
	if len(t.opts.Brokers) == 0 {
		return classify(fmt.Errorf("no kafka brokers configured"))
	}

	var lastErr error
	for _, addr := range t.opts.Brokers {
		conn, err := t.dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		lastErr = nil
		break
	}
	if lastErr != nil {
		return classify(fmt.Errorf("failed to reach kafka brokers %v: %w", t.opts.Brokers, lastErr))
	}

	partition := t.opts.Partition
	t.mu.Lock()
	t.writer = &kafka.Writer{
		Addr: kafka.TCP(t.opts.Brokers...),
		Balancer: kafka.BalancerFunc(func(kafka.Message, ...int) int {
			return partition
		}),
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
		Transport:              &kafka.Transport{ClientID: t.opts.ClientID},
	}
	t.mu.Unlock()

	t.logger.Infow("Connected to Kafka",
		"brokers", t.opts.Brokers,
		"partition", partition,
		"client_id", t.opts.ClientID,
	)
	return nil
}

func (t *KafkaTransport) Publish(ctx context.Context, subject string, data []byte) error {
	t.mu.Lock()
	w := t.writer
	t.mu.Unlock()
	if w == nil {
		return errNotConnected
	}

	ctx, span := tracing.StartPublishSpan(ctx, subject)
	defer span.End()

	headers := tracing.InjectHeaders(ctx, nil)
	kafkaHeaders := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: k, Value: []byte(v)})
	}

	err := w.WriteMessages(ctx, kafka.Message{
		Topic:   subject,
		Value:   data,
		Headers: kafkaHeaders,
		Time:    time.Now(),
	})
	if err != nil {
		span.RecordError(err)
		return classify(fmt.Errorf("failed to write kafka message: %w", err))
	}
	return nil
}

func (t *KafkaTransport) Subscribe(ctx context.Context, subject string, start uint64, handler Handler) (Subscription, error) {
	t.mu.Lock()
	connected := t.writer != nil
	t.mu.Unlock()
	if !connected {
		return nil, errNotConnected
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   t.opts.Brokers,
		Topic:     subject,
		Partition: t.opts.Partition,
		Dialer:    t.dialer,
		MinBytes:  1,
		MaxBytes:  10e6,
		MaxWait:   time.Second,
	})

	offset := int64(startSequence(start) - 1)
	if err := reader.SetOffset(offset); err != nil {
		_ = reader.Close()
		return nil, classify(fmt.Errorf("failed to seek to offset %d: %w", offset, err))
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel)
	done := make(chan struct{})
	sub.stop = func() error {
		err := reader.Close()
		<-done
		return err
	}

	t.logger.Infow("Created Kafka reader",
		"topic", subject,
		"partition", t.opts.Partition,
		"offset", offset,
	)

	go func() {
		defer close(done)
		for {
			m, err := reader.ReadMessage(subCtx)
			if err != nil {
				if subCtx.Err() != nil || errors.Is(err, io.EOF) || sub.isClosed() {
					t.logger.Infow("Stopped consuming", "topic", subject)
					return
				}
				t.logger.Errorw("Error fetching kafka message",
					"error", err,
					"topic", subject,
				)
				select {
				case <-time.After(time.Second):
					continue
				case <-subCtx.Done():
					return
				}
			}

			msg := Message{
				Subject:   subject,
				Sequence:  uint64(m.Offset) + 1,
				Timestamp: m.Time.UTC(),
				Data:      m.Value,
				Headers:   kafkaHeadersToMap(m.Headers),
			}

			msgCtx, span := tracing.StartSpanFromHeaders(subCtx, "bus.consume", subject, msg.Sequence, msg.Headers)
			delivered := sub.deliver(msgCtx, msg, handler)
			span.End()
			if !delivered {
				return
			}
		}
	}()

	return sub, nil
}

func (t *KafkaTransport) Close() error {
	t.mu.Lock()
	w := t.writer
	t.writer = nil
	t.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Close()
}

func kafkaHeadersToMap(headers []kafka.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
