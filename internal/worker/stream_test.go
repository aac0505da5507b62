package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamBufferFlushesOnByteThreshold(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "out.log"))
	require.NoError(t, err)
	defer f.Close()

	buf := newStreamBuffer(f, filepath.Join(dir, "out.overflow"), 1<<20, time.Hour, 8, 1<<20)
	_, err = buf.Write([]byte("0123456789"))
	require.NoError(t, err)

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data), "exceeding flushBytes must flush immediately")
}

func TestStreamBufferFlushesOnLineThreshold(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "out.log"))
	require.NoError(t, err)
	defer f.Close()

	buf := newStreamBuffer(f, filepath.Join(dir, "out.overflow"), 1<<20, time.Hour, 1<<20, 2)
	_, err = buf.Write([]byte("line1\nline2\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\n", string(data))
}

func TestStreamBufferSpillsToOverflowPastInlineCap(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "out.log"))
	require.NoError(t, err)
	defer f.Close()
	overflowPath := filepath.Join(dir, "out.overflow")

	buf := newStreamBuffer(f, overflowPath, 5, time.Hour, 1, 1<<20)
	_, err = buf.Write([]byte("hello world, this is longer than the cap"))
	require.NoError(t, err)
	require.NoError(t, buf.Close())

	size, truncated := buf.sizeAndTruncated()
	assert.Equal(t, int64(5), size)
	assert.True(t, truncated)

	inline, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(inline))

	overflow, err := os.ReadFile(overflowPath)
	require.NoError(t, err)
	assert.Equal(t, " world, this is longer than the cap", string(overflow))
}

func TestStreamBufferCloseFlushesRemainder(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "out.log"))
	require.NoError(t, err)
	defer f.Close()

	buf := newStreamBuffer(f, filepath.Join(dir, "out.overflow"), 1<<20, time.Hour, 1<<20, 1<<20)
	_, err = buf.Write([]byte("buffered but under every threshold"))
	require.NoError(t, err)
	require.NoError(t, buf.Close())

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "buffered but under every threshold", string(data))
}
