/**
 * CONTEXT:   Records the outcome of one daemon run as a JSON file for post-mortem and status reporting
 * INPUT:     Start time, exit code, optional error, and (once known) the daemonized child's PID
 * OUTPUT:    One timestamped JSON file per run under the configured runlog directory
 * BUSINESS:  Operators diagnosing a crashed daemon need a record of how and when it last exited
 * CHANGE:    Initial implementation
 * RISK:      Low - Best-effort persistence; a failed write should not affect the run outcome itself
 */

package runlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ErrNoRecords is returned by Latest when the runlog directory holds no
// run records yet (e.g. first run since the directory was created).
var ErrNoRecords = errors.New("runlog: no records found")

// Record is one run's outcome: pid, exit code, started/stopped timestamps,
// and error text.
type Record struct {
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	ChildPID  int       `json:"child_pid,omitempty"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitCode  int       `json:"exit_code"`
	Error     string    `json:"error,omitempty"`
}

// New builds a Record for the current process, to be completed and saved
// once the run ends. RunID distinguishes two runs that started in the same
// process generation (e.g. after a crash-restart loop), since PID alone can
// be reused by the OS.
func New(startedAt time.Time) Record {
	return Record{
		RunID:     uuid.NewString(),
		PID:       os.Getpid(),
		StartedAt: startedAt,
	}
}

// WithChildPID returns a copy of r with the daemonized child's PID attached;
// the engine only knows this after daemonize.Full has re-exec'd.
func (r Record) WithChildPID(pid int) Record {
	r.ChildPID = pid
	return r
}

// Finish returns a copy of r stamped with the run's outcome.
func (r Record) Finish(exitCode int, runErr error) Record {
	r.StoppedAt = time.Now()
	r.ExitCode = exitCode
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

// Checkpoint returns a copy of r stamped with the current time, for an
// in-progress snapshot (e.g. the SIGUSR1-triggered runlog dump) rather than
// the run's final outcome: ExitCode and Error are left at their zero value
// since the run has not actually ended yet.
func (r Record) Checkpoint() Record {
	r.StoppedAt = time.Now()
	return r
}

// Save writes r as a single JSON file under dir, named by its start time so
// successive runs never collide or overwrite each other.
func Save(dir string, r Record) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("runlog: create directory: %w", err)
	}

	name := fmt.Sprintf("run-%s.json", r.StartedAt.UTC().Format("20060102T150405.000000000Z"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("runlog: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("runlog: write: %w", err)
	}
	return path, nil
}

// Latest returns the most recently written record in dir, or ErrNoRecords
// if dir holds none.
func Latest(dir string) (Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNoRecords
		}
		return Record{}, fmt.Errorf("runlog: read directory: %w", err)
	}

	var newest string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if newest == "" || e.Name() > newest {
			newest = e.Name()
		}
	}
	if newest == "" {
		return Record{}, ErrNoRecords
	}

	data, err := os.ReadFile(filepath.Join(dir, newest))
	if err != nil {
		return Record{}, fmt.Errorf("runlog: read: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("runlog: unmarshal: %w", err)
	}
	return r, nil
}

// AsMap renders r as a map[string]any, for embedding verbatim in
// engine.Engine.State() under the "runlog" key.
func (r Record) AsMap() map[string]any {
	return map[string]any{
		"run_id":     r.RunID,
		"pid":        r.PID,
		"child_pid":  r.ChildPID,
		"started_at": r.StartedAt,
		"stopped_at": r.StoppedAt,
		"exit_code":  r.ExitCode,
		"error":      r.Error,
	}
}
