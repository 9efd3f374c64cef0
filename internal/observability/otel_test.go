package observability_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/d9705996/clientportal/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, observability.ParseLevel(in), "level %q", in)
	}
}

func TestNewLogger_HonoursLevel(t *testing.T) {
	ctx := context.Background()
	log := observability.NewLogger("warn", "text")
	assert.False(t, log.Enabled(ctx, slog.LevelInfo))
	assert.True(t, log.Enabled(ctx, slog.LevelWarn))
}

func TestNew_WithoutCollector(t *testing.T) {
	ctx := context.Background()
	obs, log, err := observability.New(ctx, &observability.Config{
		ServiceName:    "clientportal-test",
		ServiceVersion: "dev",
		LogLevel:       "error",
	})
	require.NoError(t, err)
	require.NotNil(t, log)

	inst := obs.Instruments()
	require.NotNil(t, inst)
	inst.DossierCreated(ctx, "t1", "client")
	obs.Shutdown(ctx)
}
