package bridge

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pdlbus/internal/broker"
	"pdlbus/internal/logger"
	pkgerrors "pdlbus/pkg/errors"
)

// TransportFactory opens a bus connection identified by clientID.
type TransportFactory func(clientID string) (broker.Transport, error)

type HandlerOptions struct {
	DefaultSubject string
	WriteTimeout   time.Duration
}

// Handler upgrades HTTP requests to WebSocket sessions, each backed by its
// own Bridge.
type Handler struct {
	factory  TransportFactory
	opts     HandlerOptions
	upgrader websocket.Upgrader
	logger   logger.Logger

	mu       sync.Mutex
	sessions map[string]*WebSocketConsumer
	closing  chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

func NewHandler(factory TransportFactory, opts HandlerOptions, log logger.Logger) *Handler {
	return &Handler{
		factory: factory,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:   log,
		sessions: make(map[string]*WebSocketConsumer),
		closing:  make(chan struct{}),
	}
}

func (h *Handler) Register(r gin.IRouter, path string, middleware ...gin.HandlerFunc) {
	r.GET(path, append(middleware, h.ServeWS)...)
}

type sessionParams struct {
	subject    string
	sequence   uint64
	structured bool
}

func (h *Handler) parseParams(c *gin.Context) (sessionParams, string) {
	p := sessionParams{
		subject:  c.DefaultQuery("subject", h.opts.DefaultSubject),
		sequence: 1,
	}
	if p.subject == "" {
		return p, "subject is required"
	}
	if raw := c.Query("sequence"); raw != "" {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return p, "sequence must be a non-negative integer"
		}
		p.sequence = seq
	}
	if raw := c.Query("json"); raw != "" {
		structured, err := strconv.ParseBool(raw)
		if err != nil {
			return p, "json must be a boolean"
		}
		p.structured = structured
	}
	return p, ""
}

func (h *Handler) ServeWS(c *gin.Context) {
	params, problem := h.parseParams(c)
	if problem != "" {
		c.JSON(pkgerrors.ToErrorResponse(pkgerrors.ErrValidation.WithMessage(problem)))
		return
	}

	sessionID := uuid.NewString()
	clientID := CorrelationID(sessionID)
	log := h.logger.Named("session")

	transport, err := h.factory(clientID)
	if err != nil {
		log.Errorw("Failed to create bus transport", "session_id", sessionID, "error", err)
		c.JSON(pkgerrors.ToErrorResponse(pkgerrors.ErrTransport.WithMessage("bus unavailable")))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnw("WebSocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}

	consumer := NewWebSocketConsumer(conn, h.opts.WriteTimeout, log)
	if !h.track(sessionID, consumer) {
		_ = consumer.Close()
		return
	}
	defer h.untrack(sessionID)

	b := New(Options{
		Subject:       params.subject,
		StartSequence: params.sequence,
		Structured:    params.structured,
	}, transport, consumer, log)

	ctx := context.WithoutCancel(c.Request.Context())
	if err := b.Start(ctx); err != nil {
		log.Errorw("Failed to start bridge",
			"session_id", sessionID,
			"subject", params.subject,
			"error", err,
		)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "bus unavailable"),
			time.Now().Add(time.Second))
		_ = consumer.Close()
		return
	}

	log.Infow("Bridge session opened",
		"session_id", sessionID,
		"client_id", clientID,
		"subject", params.subject,
		"sequence", params.sequence,
		"json", params.structured,
	)

	go consumer.ReadLoop()
	select {
	case <-consumer.Done():
	case <-h.closing:
	}

	b.Stop()
	if err := consumer.Close(); err != nil {
		log.Debugw("Error closing websocket", "session_id", sessionID, "error", err)
	}
	log.Infow("Bridge session closed", "session_id", sessionID)
}

func (h *Handler) track(id string, c *WebSocketConsumer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.closing:
		return false
	default:
	}
	h.sessions[id] = c
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
	h.wg.Done()
}

// Sessions is the number of open sessions.
func (h *Handler) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown ends every session and waits for them to release their bus
// connections or for ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.once.Do(func() {
		h.mu.Lock()
		close(h.closing)
		h.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
