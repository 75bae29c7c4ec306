package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.pid")

	require.NoError(t, Write(path, os.Getpid()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d\n", os.Getpid()), string(data))

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestReadMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Read(filepath.Join(dir, "missing.pid"))
	assert.ErrorIs(t, err, ErrMissing)
}

func TestReadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid\n"), 0644))

	_, err := Read(path)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestWriteToMissingDirectoryFails(t *testing.T) {
	err := Write("/this/does/not/exist/daemon.pid", 123)
	assert.ErrorIs(t, err, ErrMissing)
}

func TestSuffixedParallelNaming(t *testing.T) {
	assert.Equal(t, "/run/d.00042.pid", Suffixed("/run/d.pid", 42))
}

func TestEnumerateFindsSiblings(t *testing.T) {
	dir := t.TempDir()
	for _, pid := range []int{1, 2, 42} {
		require.NoError(t, Write(Suffixed(filepath.Join(dir, "d.pid"), pid), pid))
	}
	// An unrelated file that shouldn't match.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.pid"), []byte("1\n"), 0644))

	matches, err := Enumerate(dir, "d", false)
	require.NoError(t, err)
	require.Len(t, matches, 3)
}

func TestProbeLivenessOnSelf(t *testing.T) {
	err := Probe(os.Getpid(), syscall.Signal(0))
	assert.NoError(t, err)
}

func TestProbeNoSuchProcess(t *testing.T) {
	// A pid astronomically unlikely to exist.
	err := Probe(1<<30, syscall.Signal(0))
	assert.Error(t, err)
}
