package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"db_password", "hunter2",
		"share_token", "abc",
		"file_name", "notes.pdf",
		"dangling",
	})

	require.Equal(t, []interface{}{
		"db_password", "[REDACTED]",
		"share_token", "[REDACTED]",
		"file_name", "notes.pdf",
		"dangling",
	}, out)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("development", "loud")
	require.Error(t, err)
}

func TestNewProduction(t *testing.T) {
	l, err := New("production", "warn")
	require.NoError(t, err)
	l.With("component", "test").Info("dropped below warn")
}
