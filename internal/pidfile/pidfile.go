/**
 * CONTEXT:   PID file registry: write/read/enumerate/probe, including parallel-mode suffixing
 * INPUT:     A configured PID file path, the current process id, and (for probes) target pids
 * OUTPUT:    A PID file on disk whose sole contents are the decimal PID, or one of four distinct errors
 * BUSINESS:  Process supervisors and the action CLI rely on this file to find and signal the daemon
 * CHANGE:    Initial implementation split out of the daemon core
 * RISK:      Medium - A malformed or stale PID file misdirects signal delivery to the wrong process
 */

package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

// Distinct error classes callers need to tell apart when broadcasting.
var (
	ErrMissing    = errors.New("pidfile: file does not exist")
	ErrMalformed  = errors.New("pidfile: contents are not a valid pid")
	ErrNoProcess  = errors.New("pidfile: no process with that pid")
	ErrPermission = errors.New("pidfile: insufficient permission to signal process")
)

// Write atomically writes pid's decimal ASCII form followed by a newline,
// mode 0644, overwriting any existing file. Atomicity is achieved the same
// way the daemonizer's full-daemonize step does it: write to a temp file in
// the same directory, fsync, then rename.
func Write(path string, pid int) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pidfile-*.tmp")
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrMissing, err)
	}
	if err != nil {
		return fmt.Errorf("pidfile: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := fmt.Fprintf(tmp, "%d\n", pid); err != nil {
		tmp.Close()
		return fmt.Errorf("pidfile: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("pidfile: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("pidfile: close: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("pidfile: chmod: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("pidfile: rename: %w", err)
	}
	return nil
}

// Read returns the pid stored at path. Malformed content is reported
// distinctly from a missing file.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrMissing
	}
	if err != nil {
		return 0, fmt.Errorf("pidfile: read: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, ErrMalformed
	}
	return pid, nil
}

// Remove deletes the PID file. Removing an already-absent file is not an
// error; orderly shutdown may race a concurrent cleanup.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("pidfile: remove: %w", err)
	}
	return nil
}

// Suffixed returns path with its base name suffixed by a zero-padded
// 5-digit pid, e.g. "/run/d.pid" + 42 -> "/run/d.00042.pid".
func Suffixed(path string, pid int) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s.%05d%s", stem, pid, ext))
}

// Enumerate globs runDir for name*.pid siblings, used to discover parallel
// instances for broadcast signalling. Sorted ascending by default;
// descending when desc is true.
func Enumerate(runDir, name string, desc bool) ([]string, error) {
	pattern := filepath.Join(runDir, name+"*.pid")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("pidfile: enumerate: %w", err)
	}
	sort.Strings(matches)
	if desc {
		for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
			matches[i], matches[j] = matches[j], matches[i]
		}
	}
	return matches, nil
}

// Probe sends signal sig (0 for a pure liveness check) to pid, classifying
// the outcome into the distinct error conditions the broadcast action
// reports.
func Probe(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoProcess, err)
	}

	err = proc.Signal(sig)
	if err == nil {
		return nil
	}
	// os.Process.Signal reports ESRCH as os.ErrProcessDone.
	if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
		return ErrNoProcess
	}
	if errors.Is(err, syscall.EPERM) {
		return ErrPermission
	}
	return fmt.Errorf("pidfile: signal %d to pid %d: %w", sig, pid, err)
}
