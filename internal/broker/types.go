package broker

import (
	"context"
	"sync"
	"time"
)

// Message is one entry of a subject's log. Sequence starts at 1 and is
// strictly increasing within a subject.
type Message struct {
	Subject   string
	Sequence  uint64
	Timestamp time.Time
	Data      []byte
	Headers   map[string]string
}

// Handler processes one message. Transports call it sequentially for a
// subscription, never concurrently with itself.
type Handler func(ctx context.Context, msg Message)

type Subscription interface {
	// Close stops delivery and waits for an in-flight handler to return.
	// Handlers never run after Close returns.
	Close() error
}

// Transport is a connection to an offset-addressable log bus.
type Transport interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe delivers messages of subject starting at startSequence
	// (0 and 1 both mean the beginning of the log).
	Subscribe(ctx context.Context, subject string, startSequence uint64, handler Handler) (Subscription, error)
	Close() error
}

// subscription serialises handler calls with Close.
type subscription struct {
	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	stop   func() error
}

func newSubscription(cancel context.CancelFunc) *subscription {
	return &subscription{cancel: cancel}
}

func (s *subscription) deliver(ctx context.Context, msg Message, handler Handler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	handler(ctx, msg)
	return true
}

func (s *subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.stop != nil {
		err = s.stop()
	}
	return err
}

func startSequence(seq uint64) uint64 {
	if seq == 0 {
		return 1
	}
	return seq
}

func copyHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
