package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRotatingLogWriter_WriteReachesFile covers the pipe-fed path into
// the active log file. Writes drain through the rotator goroutine, so
// the file content is observed with a poll.
func TestRotatingLogWriter_WriteReachesFile(t *testing.T) {
	dir := t.TempDir()

	w := NewRotatingLogWriter()
	require.NoError(t, w.InitLogRotator(&LogRotatorConfig{
		LogDir:         dir,
		MaxLogFiles:    3,
		MaxLogFileSize: 1,
	}))

	_, err := w.Write([]byte("first line\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second line\n"))
	require.NoError(t, err)

	logFile := filepath.Join(dir, DefaultLogFilename)
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logFile)
		return err == nil && strings.Contains(string(data), "second line")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Close())
}

// TestRotatingLogWriter_RotatesAtSizeLimit verifies that exceeding the
// size threshold produces a gzip-compressed rotation.
func TestRotatingLogWriter_RotatesAtSizeLimit(t *testing.T) {
	dir := t.TempDir()

	w := NewRotatingLogWriter()
	require.NoError(t, w.InitLogRotator(&LogRotatorConfig{
		LogDir:         dir,
		MaxLogFiles:    3,
		MaxLogFileSize: 1, // 1 MB
	}))

	line := strings.Repeat("x", 1023) + "\n"
	for i := 0; i < 1100; i++ { // ~1.1 MB, past the threshold
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		rotations, err := filepath.Glob(filepath.Join(dir, "*.gz"))
		return err == nil && len(rotations) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Close())
}

// TestRotatingLogWriter_UninitializedDiscards: writes before init are
// swallowed rather than crashing the logger.
func TestRotatingLogWriter_UninitializedDiscards(t *testing.T) {
	w := NewRotatingLogWriter()

	n, err := w.Write([]byte("nowhere"))
	require.NoError(t, err)
	require.Equal(t, len("nowhere"), n)
	require.NoError(t, w.Close())
}
