package broker

import (
	"context"
	"sync"
	"time"

	"pdlbus/internal/logger"
	"pdlbus/pkg/tracing"
)

// Bus is an in-process log shared by MemoryTransports. It keeps every
// message for the life of the process.
type Bus struct {
	mu       sync.Mutex
	subjects map[string]*subjectLog
}

type subjectLog struct {
	messages []Message
	appended chan struct{}
}

func NewBus() *Bus {
	return &Bus{subjects: make(map[string]*subjectLog)}
}

var (
	sharedBus     *Bus
	sharedBusOnce sync.Once
)

// SharedBus is the process-wide bus used when broker.type is "memory".
func SharedBus() *Bus {
	sharedBusOnce.Do(func() { sharedBus = NewBus() })
	return sharedBus
}

func (b *Bus) log(subject string) *subjectLog {
	l, ok := b.subjects[subject]
	if !ok {
		l = &subjectLog{appended: make(chan struct{})}
		b.subjects[subject] = l
	}
	return l
}

func (b *Bus) Append(subject string, data []byte, headers map[string]string) Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	l := b.log(subject)
	msg := Message{
		Subject:   subject,
		Sequence:  uint64(len(l.messages)) + 1,
		Timestamp: time.Now().UTC(),
		Data:      append([]byte(nil), data...),
		Headers:   copyHeaders(headers),
	}
	l.messages = append(l.messages, msg)

	close(l.appended)
	l.appended = make(chan struct{})
	return msg
}

// Len is the number of messages published to subject.
func (b *Bus) Len(subject string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.log(subject).messages)
}

// next returns message seq or, when it does not exist yet, a channel closed
// on the next append.
func (b *Bus) next(subject string, seq uint64) (Message, bool, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l := b.log(subject)
	if seq <= uint64(len(l.messages)) {
		return l.messages[seq-1], true, nil
	}
	return Message{}, false, l.appended
}

type MemoryTransport struct {
	bus    *Bus
	logger logger.Logger

	mu           sync.Mutex
	connected    bool
	publishError error
}

func NewMemoryTransport(bus *Bus, log logger.Logger) *MemoryTransport {
	return &MemoryTransport{bus: bus, logger: log}
}

func (t *MemoryTransport) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

// FailPublishes makes every Publish return err until called with nil.
func (t *MemoryTransport) FailPublishes(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publishError = err
}

func (t *MemoryTransport) Publish(ctx context.Context, subject string, data []byte) error {
	t.mu.Lock()
	connected, failure := t.connected, t.publishError
	t.mu.Unlock()

	if !connected {
		return errNotConnected
	}
	if failure != nil {
		return classify(failure)
	}
	if err := ctx.Err(); err != nil {
		return classify(err)
	}

	t.bus.Append(subject, data, tracing.InjectHeaders(ctx, nil))
	return nil
}

func (t *MemoryTransport) Subscribe(ctx context.Context, subject string, start uint64, handler Handler) (Subscription, error) {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return nil, errNotConnected
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel)
	done := make(chan struct{})
	sub.stop = func() error {
		<-done
		return nil
	}

	go func() {
		defer close(done)
		seq := startSequence(start)
		for {
			msg, ok, appended := t.bus.next(subject, seq)
			if !ok {
				select {
				case <-appended:
					continue
				case <-subCtx.Done():
					return
				}
			}

			msgCtx, span := tracing.StartSpanFromHeaders(subCtx, "bus.consume", subject, msg.Sequence, msg.Headers)
			delivered := sub.deliver(msgCtx, msg, handler)
			span.End()
			if !delivered {
				return
			}
			seq++
		}
	}()

	t.logger.Debugw("Memory subscription started", "subject", subject, "start_sequence", startSequence(start))
	return sub, nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}
