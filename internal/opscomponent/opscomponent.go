/**
 * CONTEXT:   Built-in component handling the three signal-derived events the engine promises
 * INPUT:     signal_hup / signal_usr1 / signal_usr2, hoisted onto the queue by internal/signalbridge
 * OUTPUT:    A reload log line, a runlog checkpoint on disk, and a state dump (file or stdout)
 * BUSINESS:  Operators sending SIGUSR1/SIGUSR2 to a running daemon expect an action, not a crash
 * CHANGE:    Initial implementation
 * RISK:      Medium - Without this component registered, signal_usr1/usr2/hup are unknown events
 *            and dispatching them is a fatal "no handlers registered" error that kills the loop
 */

package opscomponent

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/daemonkit/daemonkit/internal/callback"
	"github.com/daemonkit/daemonkit/internal/engine"
	"github.com/daemonkit/daemonkit/internal/runlog"
	"github.com/daemonkit/daemonkit/internal/statefile"
)

// Event names signalbridge schedules, mirrored here so the two packages
// stay in lockstep without either importing the other.
const (
	EventHangup = "signal_hup"
	EventUsr1   = "signal_usr1"
	EventUsr2   = "signal_usr2"
)

// Component registers the engine's default handlers for the signal-derived
// events: SIGHUP reloads (logged only; reconfiguration is an embedder
// concern), SIGUSR1 checkpoints the runlog, and SIGUSR2 dumps full state
// to the state file normally, or to stdout when running with --no-daemon.
type Component struct {
	noDaemon bool

	mu     sync.Mutex
	record runlog.Record

	reloads     int64
	runlogSaves int64
	stateDumps  int64
}

// New constructs the ops Component. record is the current run's in-progress
// runlog.Record; the caller updates it via SetRecord once fields such as
// the daemonized child PID become known.
func New(record runlog.Record, noDaemon bool) *Component {
	return &Component{record: record, noDaemon: noDaemon}
}

// SetRecord replaces the in-progress record the SIGUSR1 handler checkpoints,
// so a later update (e.g. WithChildPID once daemonize.Full has re-exec'd) is
// reflected in the next checkpoint.
func (c *Component) SetRecord(r runlog.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record = r
}

func (c *Component) Name() string { return "ops" }

func (c *Component) Events() []engine.Registration {
	return []engine.Registration{
		{Event: EventHangup, Handler: c.onHangup},
		{Event: EventUsr1, Handler: c.onUsr1},
		{Event: EventUsr2, Handler: c.onUsr2},
	}
}

func (c *Component) Setup(e *engine.Engine) error { return nil }

// onHangup logs the reload request. Re-reading configuration is an
// embedder concern; the event still fires so a future reload hook has
// somewhere to attach.
func (c *Component) onHangup(ctxAny any, args callback.Args) (callback.Flag, callback.Args, error) {
	e := ctxAny.(*engine.Engine)
	e.Logger().Info("reload requested", "event", EventHangup)
	c.mu.Lock()
	c.reloads++
	c.mu.Unlock()
	return callback.Continue, args, nil
}

// onUsr1 checkpoints the current run's runlog to the engine's configured
// runlog directory.
func (c *Component) onUsr1(ctxAny any, args callback.Args) (callback.Flag, callback.Args, error) {
	e := ctxAny.(*engine.Engine)
	dir := e.Paths().RunLogDir
	if dir == "" {
		e.Logger().Warn("signal_usr1 received but no runlog directory is configured")
		return callback.Continue, args, nil
	}

	c.mu.Lock()
	snapshot := c.record.Checkpoint()
	c.mu.Unlock()

	path, err := runlog.Save(dir, snapshot)
	if err != nil {
		return callback.Continue, args, engine.Recoverable(fmt.Errorf("ops: save runlog checkpoint: %w", err))
	}
	e.Logger().Info("runlog checkpoint saved", "path", path)
	c.mu.Lock()
	c.runlogSaves++
	c.mu.Unlock()
	return callback.Continue, args, nil
}

// onUsr2 dumps the engine's full state tree: to the configured state file
// normally, or to stdout when running with --no-daemon.
func (c *Component) onUsr2(ctxAny any, args callback.Args) (callback.Flag, callback.Args, error) {
	e := ctxAny.(*engine.Engine)
	state := e.State()

	if c.noDaemon {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return callback.Continue, args, engine.Recoverable(fmt.Errorf("ops: marshal state dump: %w", err))
		}
		fmt.Fprintln(os.Stdout, string(data))
	} else {
		path := e.Paths().StateFile
		if path == "" {
			e.Logger().Warn("signal_usr2 received but no state file is configured")
			return callback.Continue, args, nil
		}
		if err := statefile.Save(path, state); err != nil {
			return callback.Continue, args, engine.Recoverable(fmt.Errorf("ops: save state file: %w", err))
		}
		e.Logger().Info("state dump saved", "path", path)
	}

	c.mu.Lock()
	c.stateDumps++
	c.mu.Unlock()
	return callback.Continue, args, nil
}

func (c *Component) State() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{
		"reloads":      c.reloads,
		"runlog_saves": c.runlogSaves,
		"state_dumps":  c.stateDumps,
	}
}

func (c *Component) Statistics() map[string]any {
	return c.State()
}
