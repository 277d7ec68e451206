package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(name string) Checker {
	return NewCheckFunc(name, func(context.Context) error { return nil })
}

func failing(name string) Checker {
	return NewCheckFunc(name, func(context.Context) error { return errors.New(name + " down") })
}

func TestCheckerRegistry(t *testing.T) {
	tests := []struct {
		name     string
		required []Checker
		optional []Checker
		want     Status
	}{
		{"empty", nil, nil, StatusHealthy},
		{"all healthy", []Checker{ok("receiver"), ok("index")}, nil, StatusHealthy},
		{"optional failing", []Checker{ok("receiver")}, []Checker{failing("index")}, StatusDegraded},
		{"required failing", []Checker{failing("receiver")}, []Checker{failing("index")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			for _, c := range tt.required {
				r.Register(c)
			}
			for _, c := range tt.optional {
				r.RegisterOptional(c)
			}

			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, len(tt.required)+len(tt.optional))
		})
	}
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewCheckerRegistry()
	r.Register(failing("receiver"))

	engine := gin.New()
	engine.GET("/health", r.Handler())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var h Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, "receiver down", h.Checks["receiver"].Message)
}
