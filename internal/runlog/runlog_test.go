package runlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFinishRoundTrip(t *testing.T) {
	start := time.Now().Add(-time.Minute)
	r := New(start)
	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, os.Getpid(), r.PID)
	assert.Equal(t, start, r.StartedAt)

	r = r.WithChildPID(4242)
	assert.Equal(t, 4242, r.ChildPID)

	r = r.Finish(0, nil)
	assert.Equal(t, 0, r.ExitCode)
	assert.Empty(t, r.Error)
	assert.False(t, r.StoppedAt.IsZero())
}

func TestFinishRecordsError(t *testing.T) {
	r := New(time.Now()).Finish(1, assert.AnError)
	assert.Equal(t, 1, r.ExitCode)
	assert.Equal(t, assert.AnError.Error(), r.Error)
}

func TestCheckpointLeavesOutcomeAtZeroValue(t *testing.T) {
	r := New(time.Now()).WithChildPID(321)
	cp := r.Checkpoint()
	assert.Equal(t, 0, cp.ExitCode)
	assert.Empty(t, cp.Error)
	assert.False(t, cp.StoppedAt.IsZero())
	assert.Equal(t, 321, cp.ChildPID)
}

func TestSaveWritesDistinctFiles(t *testing.T) {
	dir := t.TempDir()

	r1 := New(time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)).Finish(0, nil)
	p1, err := Save(dir, r1)
	require.NoError(t, err)

	r2 := New(time.Date(2026, 7, 29, 10, 0, 1, 0, time.UTC)).Finish(0, nil)
	p2, err := Save(dir, r2)
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLatestReturnsMostRecentRecord(t *testing.T) {
	dir := t.TempDir()

	older := New(time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)).Finish(0, nil)
	_, err := Save(dir, older)
	require.NoError(t, err)

	newer := New(time.Date(2026, 7, 29, 11, 0, 0, 0, time.UTC)).WithChildPID(99).Finish(2, nil)
	_, err = Save(dir, newer)
	require.NoError(t, err)

	latest, err := Latest(dir)
	require.NoError(t, err)
	assert.Equal(t, 99, latest.ChildPID)
	assert.Equal(t, 2, latest.ExitCode)
}

func TestLatestOnMissingDirectoryReturnsErrNoRecords(t *testing.T) {
	_, err := Latest(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestAsMapIncludesExpectedKeys(t *testing.T) {
	r := New(time.Now()).Finish(0, nil)
	m := r.AsMap()
	assert.Contains(t, m, "pid")
	assert.Contains(t, m, "started_at")
	assert.Contains(t, m, "stopped_at")
	assert.Contains(t, m, "exit_code")
}
