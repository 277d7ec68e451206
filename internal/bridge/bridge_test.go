package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"pdlbus/internal/broker"
	"pdlbus/internal/logger"
)

const subject = "anss"

func TestCorrelationID(t *testing.T) {
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", CorrelationID("abc"))
	assert.Len(t, CorrelationID("a3f1c2d0-0000-4000-8000-000000000000"), 40)
}

func TestBuildFrame(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 5, time.UTC)

	tests := []struct {
		name       string
		payload    string
		structured bool
		wantData   string
		wantErr    bool
	}{
		{"raw text", "hello", false, `"hello"`, false},
		{"raw json kept as string", `{"a":1}`, false, `"{\"a\":1}"`, false},
		{"structured object", `{"a":1}`, true, `{"a":1}`, false},
		{"structured invalid falls back", "not json", true, `"not json"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildFrame(broker.Message{Sequence: 7, Timestamp: ts, Data: []byte(tt.payload)}, tt.structured)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, uint64(7), frame.Sequence)
			assert.Equal(t, ts.UnixNano(), frame.Timestamp)
			assert.JSONEq(t, tt.wantData, string(frame.Data))
		})
	}
}

func TestFrame_WireFormat(t *testing.T) {
	frame := Frame{Sequence: 3, Timestamp: 1704067200000000000, Data: json.RawMessage(`"x"`)}
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sequence":3,"timestamp":1704067200000000000,"data":"x"}`, string(data))
}

type fakeConsumer struct {
	mu      sync.Mutex
	frames  []Frame
	closed  bool
	sendErr error
}

func (c *fakeConsumer) Send(_ context.Context, f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConsumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConsumer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestBridge_ForwardsFromStartSequence(t *testing.T) {
	bus := broker.NewBus()
	for _, p := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		bus.Append(subject, []byte(p), nil)
	}

	consumer := &fakeConsumer{}
	b := New(Options{Subject: subject, StartSequence: 2, Structured: true},
		broker.NewMemoryTransport(bus, logger.NopLogger()), consumer, logger.NopLogger())
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	require.Eventually(t, func() bool { return consumer.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), consumer.frames[0].Sequence)
	assert.JSONEq(t, `{"n":3}`, string(consumer.frames[1].Data))
}

func TestBridge_ConsumerFailures(t *testing.T) {
	tests := []struct {
		name     string
		consumer *fakeConsumer
		logged   string
	}{
		{"closed consumer", &fakeConsumer{closed: true}, "Consumer closed, dropping message"},
		{"send error", &fakeConsumer{sendErr: errors.New("broken pipe")}, "Failed to forward message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			log := logger.NewWithCore(core)
			bus := broker.NewBus()
			bus.Append(subject, []byte("one"), nil)
			bus.Append(subject, []byte("two"), nil)

			b := New(Options{Subject: subject}, broker.NewMemoryTransport(bus, log), tt.consumer, log)
			require.NoError(t, b.Start(context.Background()))
			defer b.Stop()

			require.Eventually(t, func() bool {
				return logs.FilterMessage(tt.logged).Len() == 2
			}, time.Second, 5*time.Millisecond)
			assert.Zero(t, tt.consumer.count())
		})
	}
}

func TestBridge_StructuredFallbackWarns(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := logger.NewWithCore(core)
	bus := broker.NewBus()
	bus.Append(subject, []byte("plain text"), nil)

	consumer := &fakeConsumer{}
	b := New(Options{Subject: subject, Structured: true}, broker.NewMemoryTransport(bus, log), consumer, log)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	require.Eventually(t, func() bool { return consumer.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `"plain text"`, string(consumer.frames[0].Data))
	assert.Equal(t, 1, logs.FilterMessage("Payload is not JSON, forwarding as string").Len())
}

func newTestServer(t *testing.T, bus *broker.Bus) (*Handler, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var mu sync.Mutex
	var clientIDs []string
	h := NewHandler(func(clientID string) (broker.Transport, error) {
		mu.Lock()
		clientIDs = append(clientIDs, clientID)
		mu.Unlock()
		return broker.NewMemoryTransport(bus, logger.NopLogger()), nil
	}, HandlerOptions{DefaultSubject: subject, WriteTimeout: time.Second}, logger.NopLogger())

	r := gin.New()
	h.Register(r, "/ws")
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
}

func TestHandler_StreamsFrames(t *testing.T) {
	bus := broker.NewBus()
	bus.Append(subject, []byte(`{"id":"first"}`), nil)
	bus.Append(subject, []byte(`{"id":"second"}`), nil)

	h, srv := newTestServer(t, bus)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "subject=anss&sequence=2&json=true"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, uint64(2), frame.Sequence)
	assert.JSONEq(t, `{"id":"second"}`, string(frame.Data))

	bus.Append(subject, []byte(`{"id":"third"}`), nil)
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, uint64(3), frame.Sequence)

	assert.Equal(t, 1, h.Sessions())
	require.NoError(t, h.Shutdown(context.Background()))
	assert.Equal(t, 0, h.Sessions())
}

func TestHandler_RejectsBadParams(t *testing.T) {
	_, srv := newTestServer(t, broker.NewBus())

	for _, query := range []string{"sequence=-1", "json=maybe"} {
		t.Run(query, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/ws?" + query)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHandler_ClientDisconnectEndsSession(t *testing.T) {
	h, srv := newTestServer(t, broker.NewBus())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Sessions() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	require.Eventually(t, func() bool { return h.Sessions() == 0 }, 2*time.Second, 5*time.Millisecond)
}
