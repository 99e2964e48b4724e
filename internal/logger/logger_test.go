package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"filterchain/pkg/logging"
)

func observed() (*SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &SugaredLogger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestSugaredLogger_ContextFields(t *testing.T) {
	l, logs := observed()
	l.SetServiceName("auth-filter")

	ctx := logging.WithStage(logging.WithMessageID(context.Background(), "m-9"), "auth")
	l.InfowCtx(ctx, "published", "topic", "result")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "m-9", fields[logging.MessageIDKey])
	assert.Equal(t, "auth", fields[logging.StageKey])
	assert.Equal(t, "auth-filter", fields[logging.ServiceNameKey])
	assert.Equal(t, "result", fields["topic"])
}

func TestSugaredLogger_With(t *testing.T) {
	l, logs := observed()

	child := l.With("worker", 2)
	child.Warnw("queue full")

	require.Equal(t, 1, logs.Len())
	assert.EqualValues(t, 2, logs.All()[0].ContextMap()["worker"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNew(t *testing.T) {
	l, err := New("debug", "console")
	require.NoError(t, err)
	assert.NotNil(t, l)

	NopLogger().ErrorwCtx(context.Background(), "ignored")
}
