// Package health aggregates component checks into the /health response.
package health

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 5 * time.Second

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

type entry struct {
	checker Checker
	// failStatus is reported when the checker errors.
	failStatus Status
}

// CheckerRegistry runs every registered checker concurrently. A failing
// required checker makes the service unhealthy; a failing optional one only
// degrades it.
type CheckerRegistry struct {
	mu      sync.RWMutex
	entries []entry
	now     func() time.Time
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{now: time.Now}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.add(entry{checker: checker, failStatus: StatusUnhealthy})
}

func (r *CheckerRegistry) RegisterOptional(checker Checker) {
	r.add(entry{checker: checker, failStatus: StatusDegraded})
}

func (r *CheckerRegistry) add(e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	r.mu.RLock()
	entries := append([]entry(nil), r.entries...)
	r.mu.RUnlock()

	results := make([]CheckResult, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		i, e := i, e
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.run(ctx, e)
		}()
	}
	wg.Wait()

	h := Health{
		Status:    StatusHealthy,
		Timestamp: r.now(),
		Checks:    make(map[string]CheckResult, len(entries)),
	}
	for i, e := range entries {
		res := results[i]
		h.Checks[e.checker.Name()] = res
		h.Status = worse(h.Status, res.Status)
	}
	return h
}

func (r *CheckerRegistry) run(ctx context.Context, e entry) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := r.now()
	err := e.checker.Check(ctx)
	res := CheckResult{Status: StatusHealthy, Duration: r.now().Sub(start)}
	if err != nil {
		res.Status = e.failStatus
		res.Message = err.Error()
	}
	return res
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Handler serves the registry as JSON, with 503 when unhealthy.
func (r *CheckerRegistry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := r.Check(c.Request.Context())
		code := http.StatusOK
		if h.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, h)
	}
}

// CheckFunc adapts a function to a Checker.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func NewCheckFunc(name string, fn func(ctx context.Context) error) CheckFunc {
	return CheckFunc{name: name, fn: fn}
}

func (c CheckFunc) Name() string                    { return c.name }
func (c CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

func NewPostgreSQLChecker(db *sql.DB) CheckFunc {
	return NewCheckFunc("postgresql", db.PingContext)
}

func NewRedisChecker(client *redis.Client) CheckFunc {
	return NewCheckFunc("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

func NewMongoDBChecker(client *mongo.Client) CheckFunc {
	return NewCheckFunc("mongodb", func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	})
}
