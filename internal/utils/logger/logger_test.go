package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesToRotatedFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "custody.log")
	cfg.Development = true

	l, err := New(cfg)
	require.NoError(t, err)
	l.WithComponent("test").Info("hello")
	assert.NoError(t, l.Sync())
	assert.FileExists(t, cfg.LogFile)
}

func TestFileOnlyLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "custodyctl.log")
	cfg.FileOnly = true

	l, err := New(cfg)
	require.NoError(t, err)
	l.Info("console started")
	require.NoError(t, l.Sync())
	assert.FileExists(t, cfg.LogFile)
}

func TestHelpersAddFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	WithClaim(base, "mint1", "wallet1", "user1").Info("claim")
	WithOperation(base, "quote").Info("op")

	entries := logs.All()
	require.Len(t, entries, 2)

	fields := entries[0].ContextMap()
	assert.Equal(t, "mint1", fields["token_mint"])
	assert.Equal(t, "wallet1", fields["claimant_wallet"])
	assert.Equal(t, "user1", fields["user_id"])

	opFields := entries[1].ContextMap()
	assert.Equal(t, "quote", opFields["operation"])
	assert.NotEmpty(t, opFields["correlation_id"])
}

func TestTrackPerformance(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	end := TrackPerformance(zap.New(core), "settle")
	end()
	assert.Equal(t, 2, logs.Len())
}
