package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapWrapper_FieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := NewZapAdapter(zap.New(core))

	scoped := Component(log, "validator").WithError(errors.New("boom"))
	scoped.Warn("catalog lookup failed", map[string]interface{}{
		"code":  "plombrie",
		"cause": errors.New("pq: timeout"),
	})

	entries := logs.All()
	assert.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "validator", ctx["component"])
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, "pq: timeout", ctx["cause"])
	assert.Equal(t, "plombrie", ctx["code"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("debug").String())
	assert.Equal(t, "warn", parseLevel("warn").String())
	assert.Equal(t, "info", parseLevel("verbose").String())
}

func TestComponent_NilLogger(t *testing.T) {
	l := Component(nil, "accumulator")
	assert.NotNil(t, l)
	l.Info("no-op", nil)
}
