/**
 * CONTEXT:   Single-threaded event loop tying the queue, callback registry, and components together
 * INPUT:     Registered components, a populated event queue, and OS signals relayed via the bridge
 * OUTPUT:    A running loop that dispatches events to completion, or a terminal error/exit
 * BUSINESS:  This loop is the daemon's entire execution model; every other package only feeds it
 * CHANGE:    Initial implementation split out of the daemon core
 * RISK:      High - The loop's error handling decides whether a bad handler kills the whole daemon
 */

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/daemonkit/daemonkit/internal/callback"
	"github.com/daemonkit/daemonkit/internal/queue"
)

// Registration is one (event, handler, prepend) tuple a Component exposes
// via Events(). The engine wires it into the callback registry at
// construction time.
type Registration struct {
	Event   string
	Handler callback.HandlerFunc
	Prepend bool
}

// Component is the capability set every pluggable worker implements: event
// registrations, a one-time setup hook, and introspectable
// state/statistics trees.
type Component interface {
	Name() string
	Events() []Registration
	Setup(e *Engine) error
	State() map[string]any
	Statistics() map[string]any
}

// RecoverableError marks a handler error as non-fatal: the loop logs it and
// moves on to the next event rather than exiting. Mirrors the "subprocess
// errors from handlers" class in the error taxonomy.
type RecoverableError struct {
	Err error
}

func (r *RecoverableError) Error() string { return r.Err.Error() }
func (r *RecoverableError) Unwrap() error { return r.Err }

// Recoverable wraps err so the loop treats it as a logged-and-continue
// failure instead of a fatal one.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &RecoverableError{Err: err}
}

// Paths resolves where the engine's PID file, state snapshot, and runlog
// directory live. Parallel-mode suffixing (internal/pidfile) is applied by
// the caller before these are handed to the engine.
type Paths struct {
	PIDFile   string
	StateFile string
	RunLogDir string
}

// Engine owns the queue, the callback registry, the component list, and the
// done/cancellation state. It is the non-owning back-reference ("engine_ref")
// passed to every handler.
type Engine struct {
	logger *slog.Logger
	config any // opaque configuration snapshot, rendered verbatim in State()
	paths  Paths

	registry   *callback.Registry
	components []Component

	q   *queue.Queue
	qMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	wakeCh chan struct{}

	startTime     time.Time
	lastExitCode  int
	lastRunlog    map[string]any
	statsInterval time.Duration

	statsMu   sync.Mutex
	statsPrev map[string]map[string]any
	statsAt   map[string]time.Time
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the default logger (slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithConfig attaches an opaque configuration snapshot, included verbatim
// in State().
func WithConfig(cfg any) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithPaths attaches the PID/state/runlog path resolvers.
func WithPaths(p Paths) Option {
	return func(e *Engine) { e.paths = p }
}

// New constructs an Engine with the given components. Components are
// registered (their Events() wired into the callback registry) immediately;
// Setup() runs later, once, at the start of Run().
func New(components []Component, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		logger:     slog.Default(),
		registry:   callback.New(),
		components: components,
		q:          queue.New(),
		ctx:        ctx,
		cancel:     cancel,
		wakeCh:     make(chan struct{}, 1),
		statsPrev:  make(map[string]map[string]any),
		statsAt:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, c := range components {
		for _, reg := range c.Events() {
			e.registry.Register(reg.Event, c, c.Name(), reg.Handler, reg.Prepend)
		}
	}
	e.installStatsLogger()
	return e
}

// Logger returns the engine's logger, so components can log through the
// same handle the engine uses.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Paths returns the engine's resolved PID/state/runlog paths.
func (e *Engine) Paths() Paths { return e.paths }

// Schedule appends an event to the immediate FIFO.
func (e *Engine) Schedule(name string, args map[string]any) {
	e.qMu.Lock()
	defer e.qMu.Unlock()
	e.q.Schedule(name, args)
}

// ScheduleNext prepends an event to the immediate FIFO. This is the only
// queue mutation the signal bridge performs; everything else runs on the
// loop goroutine.
func (e *Engine) ScheduleNext(name string, args map[string]any) {
	e.qMu.Lock()
	defer e.qMu.Unlock()
	e.q.ScheduleNext(name, args)
	e.nudge()
}

// ScheduleAt pushes a timed entry due at an absolute wall-clock time.
func (e *Engine) ScheduleAt(due time.Time, name string, args map[string]any) {
	e.qMu.Lock()
	defer e.qMu.Unlock()
	e.q.ScheduleAt(due, name, args)
}

// ScheduleAfter pushes a timed entry due delta from now.
func (e *Engine) ScheduleAfter(delta time.Duration, name string, args map[string]any) {
	e.qMu.Lock()
	defer e.qMu.Unlock()
	e.q.ScheduleAfter(delta, name, args)
}

// QueueCount returns the number of pending events across both stores.
func (e *Engine) QueueCount() int {
	e.qMu.Lock()
	defer e.qMu.Unlock()
	return e.q.Count()
}

// Wake interrupts the loop's idle sleep without scheduling an event. This is
// ALRM's sole purpose: wake the sleeper, nothing more.
func (e *Engine) Wake() {
	e.nudge()
}

func (e *Engine) nudge() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

// Stop requests the loop exit at the next opportunity. Safe to call from any
// goroutine (the signal bridge calls it for INT/TERM).
func (e *Engine) Stop() {
	e.cancel()
}

// Done reports whether the loop has been asked to stop.
func (e *Engine) Done() bool {
	select {
	case <-e.ctx.Done():
		return true
	default:
		return false
	}
}

// Run starts every component's Setup() hook once, then drives the event
// loop until the queue empties, the loop is stopped, or a fatal error
// occurs. Only this goroutine pulls from the queue. Other goroutines (the
// signal bridge among them) may call ScheduleNext, which is mutex-guarded,
// and Stop, which cancels the engine's context; the loop checks for that
// cancellation before each event and during its idle sleep.
func (e *Engine) Run() error {
	e.startTime = time.Now()

	for _, c := range e.components {
		if err := c.Setup(e); err != nil {
			return fmt.Errorf("engine: component %q setup failed: %w", c.Name(), err)
		}
	}

	for {
		if e.Done() {
			e.logger.Info("event loop stopping", "reason", "cancelled")
			e.lastExitCode = 0
			return nil
		}

		e.qMu.Lock()
		ev, err := e.q.Next()
		e.qMu.Unlock()

		switch {
		case err == nil:
			fatal, derr := e.dispatch(ev)
			if derr != nil {
				e.lastExitCode = 1
				return derr
			}
			if fatal {
				e.lastExitCode = 0
				return nil
			}

		case errors.Is(err, queue.ErrNothingDue):
			e.sleepUntilNextDue()

		case errors.Is(err, queue.ErrEmpty):
			e.logger.Info("event queue empty, stopping loop")
			e.lastExitCode = 0
			return nil

		default:
			return fmt.Errorf("engine: unexpected queue error: %w", err)
		}
	}
}

// sleepUntilNextDue waits for the timed heap's root to become due, rounding
// the wait up to the next whole second per the engine's whole-second
// scheduling granularity, floored at zero. The sleep is interruptible by
// Stop() (context cancellation) or Wake() (the ALRM-equivalent channel).
func (e *Engine) sleepUntilNextDue() {
	e.qMu.Lock()
	wait := e.q.WaitFor()
	e.qMu.Unlock()

	secs := math.Ceil(wait.Seconds())
	if secs < 0 {
		secs = 0
	}
	d := time.Duration(secs) * time.Second
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-e.ctx.Done():
	case <-e.wakeCh:
	case <-timer.C:
	}
}

// dispatch runs one event's handler chain. It returns (fatal, err): fatal
// means the loop should stop cleanly (exit code 0); err means the loop
// should stop with a non-zero outcome.
func (e *Engine) dispatch(ev queue.Event) (fatal bool, err error) {
	chain, ok := e.registry.Handlers(ev.Name)
	if !ok {
		return false, callback.ErrUnknownEvent(ev.Name)
	}

	args := callback.Args(ev.Args)
	for _, h := range chain {
		flag, next, herr := h.Func(e, args)
		if herr != nil {
			if errors.Is(herr, context.Canceled) {
				e.logger.Info("handler interrupted", "event", ev.Name, "handler", h.Name)
				return true, nil
			}
			var rec *RecoverableError
			if errors.As(herr, &rec) {
				e.logger.Error("recoverable handler error",
					"event", ev.Name, "handler", h.Name, "error", rec.Err)
				return false, nil
			}
			e.logger.Error("fatal handler error",
				"event", ev.Name, "handler", h.Name, "error", herr, "stack", string(debug.Stack()))
			return false, fmt.Errorf("engine: handler %q for event %q failed: %w", h.Name, ev.Name, herr)
		}
		args = next
		if flag == callback.Stop {
			break
		}
	}
	return false, nil
}

// Uptime reports how long the loop has been running.
func (e *Engine) Uptime() time.Duration {
	if e.startTime.IsZero() {
		return 0
	}
	return time.Since(e.startTime)
}
