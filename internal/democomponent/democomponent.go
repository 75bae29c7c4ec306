/**
 * CONTEXT:   Minimal reference component exercising the engine end to end
 * INPUT:     The "default" event, re-scheduled by its own handler each dispatch
 * OUTPUT:    A ticks counter visible via State()/Statistics(), incrementing once per second
 * BUSINESS:  New components are written by copying this one; it has to show the whole contract working
 * CHANGE:    Initial implementation
 * RISK:      Low - Reference/demo code, not on any production path
 */

package democomponent

import (
	"sync/atomic"
	"time"

	"github.com/daemonkit/daemonkit/internal/callback"
	"github.com/daemonkit/daemonkit/internal/engine"
)

// DefaultEvent is the event name this component registers and reschedules.
const DefaultEvent = "default"

// Component re-schedules itself on every dispatch of DefaultEvent, counting
// ticks and sleeping briefly to simulate real work. It runs synchronously
// on the engine's own goroutine: the engine dispatches handlers one at a
// time, so a handler that sleeps simply delays the next dispatch rather
// than racing it.
type Component struct {
	ticks    int64
	interval time.Duration
}

// New constructs a demo Component. An interval of zero defaults to one
// second.
func New(interval time.Duration) *Component {
	if interval <= 0 {
		interval = time.Second
	}
	return &Component{interval: interval}
}

func (c *Component) Name() string { return "demo" }

func (c *Component) Events() []engine.Registration {
	return []engine.Registration{
		{Event: DefaultEvent, Handler: c.onDefault},
	}
}

func (c *Component) Setup(e *engine.Engine) error {
	e.Schedule(DefaultEvent, nil)
	return nil
}

func (c *Component) onDefault(ctxAny any, args callback.Args) (callback.Flag, callback.Args, error) {
	eng := ctxAny.(*engine.Engine)
	atomic.AddInt64(&c.ticks, 1)
	time.Sleep(c.interval)
	eng.Schedule(DefaultEvent, nil)
	return callback.Continue, args, nil
}

func (c *Component) State() map[string]any {
	return map[string]any{
		"ticks": atomic.LoadInt64(&c.ticks),
	}
}

func (c *Component) Statistics() map[string]any {
	return map[string]any{
		"ticks": atomic.LoadInt64(&c.ticks),
	}
}
