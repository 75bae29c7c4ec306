/**
 * CONTEXT:   Full introspectable state snapshot of the engine, for USR2/state-file dumps
 * INPUT:     Engine's path resolvers, configuration snapshot, callback registry, and components
 * OUTPUT:    A key/value tree suitable for JSON serialization
 * BUSINESS:  Operators and the state file need one consistent view of "what is this daemon doing"
 * CHANGE:    Initial implementation
 * RISK:      Low - Read-only introspection; must not mutate engine state
 */

package engine

import (
	"encoding/json"
	"os"
	"time"
)

// SetLastRunlog attaches the current runlog record, included verbatim in
// State() under "runlog".
func (e *Engine) SetLastRunlog(r map[string]any) {
	e.lastRunlog = r
}

// LastExitCode returns the exit code recorded by the most recent Run().
func (e *Engine) LastExitCode() int { return e.lastExitCode }

// State returns the engine's full introspectable tree: time, last return
// code, the configuration snapshot, the resolved path map, the callback
// registry view, the component list, each component's own state, the
// runlog, and the prior snapshot already on disk at Paths.StateFile.
func (e *Engine) State() map[string]any {
	componentNames := make([]string, 0, len(e.components))
	componentState := make(map[string]any, len(e.components))
	for _, c := range e.components {
		componentNames = append(componentNames, c.Name())
		componentState[c.Name()] = c.State()
	}

	return map[string]any{
		"time":           time.Now(),
		"last_exit_code": e.lastExitCode,
		"config":         e.config,
		"paths": map[string]string{
			"pid_file":    e.paths.PIDFile,
			"state_file":  e.paths.StateFile,
			"run_log_dir": e.paths.RunLogDir,
		},
		"callbacks":       e.registry.Events(),
		"components":      componentNames,
		"component_state": componentState,
		"runlog":          e.lastRunlog,
		"persisted_state": e.loadPersistedState(),
		"uptime":          e.Uptime().String(),
	}
}

// loadPersistedState reads back the engine's own last-saved state file, so
// State() reflects what is actually durable rather than only in-memory
// values. A missing or unreadable file (e.g. first run) yields nil rather
// than an error, since State() itself never fails.
func (e *Engine) loadPersistedState() map[string]any {
	if e.paths.StateFile == "" {
		return nil
	}
	data, err := os.ReadFile(e.paths.StateFile)
	if err != nil {
		return nil
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil
	}
	return tree
}
