package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingWriter(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "subdir", "actions.log")

	rw, err := NewRotatingWriter(logFile, 10, 7)
	require.NoError(t, err)
	defer rw.Close()

	_, err = os.Stat(logFile)
	assert.NoError(t, err)
}

func TestRotatingWriterRotates(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "actions.log")

	rw, err := NewRotatingWriter(logFile, 1, 7)
	require.NoError(t, err)
	defer rw.Close()

	chunk := []byte(strings.Repeat("x", 600*1024))
	_, err = rw.Write(chunk)
	require.NoError(t, err)
	_, err = rw.Write(chunk)
	require.NoError(t, err)

	matches, err := filepath.Glob(logFile + ".*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	info, err := os.Stat(logFile)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk)), info.Size())
}

func TestRotatingWriterRemovesExpired(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "actions.log")

	old := logFile + ".20200101-000000.000"
	require.NoError(t, os.WriteFile(old, []byte("old"), 0644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	rw, err := NewRotatingWriter(logFile, 1, 7)
	require.NoError(t, err)
	defer rw.Close()

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "actions.log"), 1, 0)
	require.NoError(t, err)

	assert.NoError(t, rw.Close())
	assert.NoError(t, rw.Close())
}
