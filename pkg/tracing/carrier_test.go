package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"pdlbus/internal/config"
	pkgerrors "pdlbus/pkg/errors"
)

func TestHeadersRoundTrip(t *testing.T) {
	tp, err := Init(config.TracingConfig{}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	provider := sdktrace.NewTracerProvider()
	ctx, span := provider.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectHeaders(ctx, nil)
	require.Contains(t, headers, "traceparent")

	consumed, consumeSpan := StartSpanFromHeaders(context.Background(), "bus.consume", "anss.realtime", 7, headers)
	defer consumeSpan.End()

	assert.Equal(t, span.SpanContext().TraceID().String(), TraceID(ExtractHeaders(context.Background(), headers)))
	assert.NotNil(t, consumed)
}

func TestTraceID_Empty(t *testing.T) {
	assert.Equal(t, "", TraceID(context.Background()))
	assert.Equal(t, context.Background(), ExtractHeaders(context.Background(), nil))
}

func TestParseSampler(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SamplerConfig
		want    string
		wantErr bool
	}{
		{name: "default", cfg: config.SamplerConfig{}, want: "AlwaysOnSampler"},
		{name: "off", cfg: config.SamplerConfig{Type: "always_off"}, want: "AlwaysOffSampler"},
		{name: "ratio", cfg: config.SamplerConfig{Type: "traceidratio", Param: 0.5}, want: "TraceIDRatioBased{0.5}"},
		{name: "parent ratio", cfg: config.SamplerConfig{Type: "ParentBased_TraceIDRatio", Param: 0.25}, want: "ParentBased{root:TraceIDRatioBased{0.25}"},
		{name: "ratio out of range", cfg: config.SamplerConfig{Type: "traceidratio", Param: 2}, wantErr: true},
		{name: "unknown", cfg: config.SamplerConfig{Type: "sometimes"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSampler(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsConfiguration(err))
				return
			}
			require.NoError(t, err)
			assert.Contains(t, s.Description(), tt.want)
		})
	}
}
