package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/Guildhall/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("json to stdout", func(t *testing.T) {
		l, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
		require.NoError(t, err)
		l.Info("hello")
	})

	t.Run("unknown level is rejected", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{Level: "loud"})
		assert.Error(t, err)
	})

	t.Run("file output requires a path", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{Output: "file"})
		assert.Error(t, err)
	})
}

func TestLogger_WithContextWritesIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "json", Output: "file", FilePath: path})
	require.NoError(t, err)

	ctx := WithUserID(WithTraceID(context.Background(), "trace-xyz"), "user-1")
	l.InfoContext(ctx, "message created", zap.String("channel_id", "c1"))
	require.NoError(t, l.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "message created", entry["msg"])
	assert.Equal(t, "trace-xyz", entry["trace_id"])
	assert.Equal(t, "user-1", entry["user_id"])
	assert.Equal(t, "c1", entry["channel_id"])
}

func TestLogger_WithContextWithoutIDs(t *testing.T) {
	l := NewNop()
	assert.Same(t, l, l.WithContext(context.Background()))
}
