/**
 * CONTEXT:   Periodic statistics logging, driven by the --stats-interval flag
 * INPUT:     The engine's own Statistics() snapshot, on a recurring timed event
 * OUTPUT:    A "log_statistics" event dispatched every StatsInterval, logging and rescheduling itself
 * BUSINESS:  Operators watching logs need periodic throughput numbers without polling the state file
 * CHANGE:    Initial implementation
 * RISK:      Low - Logging side effect only; disabled entirely when interval is zero
 */

package engine

import (
	"time"

	"github.com/daemonkit/daemonkit/internal/callback"
)

// EventLogStatistics is the synthetic event behind the --stats-interval
// driven periodic statistics log line.
const EventLogStatistics = "log_statistics"

// WithStatsInterval registers the engine's built-in log_statistics handler
// and schedules its first firing. An interval of zero disables it.
func WithStatsInterval(interval time.Duration) Option {
	return func(e *Engine) { e.statsInterval = interval }
}

func (e *Engine) installStatsLogger() {
	if e.statsInterval <= 0 {
		return
	}
	e.registry.Register(EventLogStatistics, nil, "engine.statslog", e.onLogStatistics, false)
	e.ScheduleAfter(e.statsInterval, EventLogStatistics, nil)
}

func (e *Engine) onLogStatistics(ctxAny any, args callback.Args) (callback.Flag, callback.Args, error) {
	e.logger.Info("statistics", "snapshot", e.Statistics())
	e.ScheduleAfter(e.statsInterval, EventLogStatistics, nil)
	return callback.Continue, args, nil
}
