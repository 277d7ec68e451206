package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithProductID(ctx, "urn:usgs-product:us:origin:abc:1")
	ctx = WithSubject(ctx, "anss.realtime")

	assert.Equal(t, []interface{}{
		"trace_id", "trace-1",
		"product_id", "urn:usgs-product:us:origin:abc:1",
		"subject", "anss.realtime",
	}, GetLogFields(ctx))
}

func TestEarlyLog(t *testing.T) {
	var out, errOut bytes.Buffer
	exitCode := -1
	l := &EarlyLog{out: &out, err: &errOut, exit: func(code int) { exitCode = code }}

	l.Info("loaded %s", "config.yaml")
	assert.Equal(t, "INFO: loaded config.yaml\n", out.String())

	l.Fatal("boom")
	assert.Equal(t, "FATAL: boom\n", errOut.String())
	assert.Equal(t, 1, exitCode)
}
