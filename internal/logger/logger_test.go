package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pdlbus/pkg/logging"
)

func TestNew(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		l, err := New(level, WithEncoding("console"), WithServiceName("receiver-service"))
		require.NoError(t, err)
		assert.NotNil(t, l)
	}
}

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core).(*SugaredLogger)
	l.SetServiceName("receiver-service")

	ctx := logging.WithProductID(context.Background(), "urn:usgs-product:us:origin:abc:1")
	l.Named("receiver").WarnwCtx(ctx, "notification expired", "sequence", 7)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "notification expired", entry.Message)
	assert.Equal(t, "receiver", entry.LoggerName)

	fields := entry.ContextMap()
	assert.Equal(t, "urn:usgs-product:us:origin:abc:1", fields["product_id"])
	assert.Equal(t, "receiver-service", fields["service_name"])
	assert.EqualValues(t, 7, fields["sequence"])
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	l.InfowCtx(context.Background(), "ignored")
	assert.NoError(t, l.Sync())
}
