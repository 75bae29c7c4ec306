package engine

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daemonkit/daemonkit/internal/callback"
)

// fnComponent is a minimal test double implementing Component via closures,
// so each test can wire exactly the handler behavior it needs without a
// dedicated type per scenario.
type fnComponent struct {
	name          string
	registrations []Registration
	setup         func(e *Engine) error
}

func (f *fnComponent) Name() string           { return f.name }
func (f *fnComponent) Events() []Registration { return f.registrations }

func (f *fnComponent) Setup(e *Engine) error {
	if f.setup != nil {
		return f.setup(e)
	}
	return nil
}

func (f *fnComponent) State() map[string]any      { return map[string]any{} }
func (f *fnComponent) Statistics() map[string]any { return map[string]any{} }

func TestSingleComponentEchoLoopStopsOnDone(t *testing.T) {
	var ticks int32

	c := &fnComponent{
		name: "echo",
		registrations: []Registration{
			{Event: "default", Handler: func(ctxAny any, args callback.Args) (callback.Flag, callback.Args, error) {
				eng := ctxAny.(*Engine)
				n := atomic.AddInt32(&ticks, 1)
				if n < 3 {
					eng.Schedule("default", nil)
				} else {
					eng.Stop()
				}
				return callback.Continue, args, nil
			}},
		},
	}

	e := New([]Component{c})
	e.Schedule("default", nil)

	err := e.Run()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&ticks)), 2)
}

func TestUnknownEventIsFatal(t *testing.T) {
	e := New(nil)
	e.Schedule("nope", nil)

	err := e.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestShortCircuitAcrossHandlerChain(t *testing.T) {
	var order []string
	c1 := &fnComponent{
		name: "first",
		registrations: []Registration{
			{Event: "tick", Handler: func(ctxAny any, args callback.Args) (callback.Flag, callback.Args, error) {
				order = append(order, "first")
				return callback.Stop, args, nil
			}},
		},
	}
	c2 := &fnComponent{
		name: "second",
		registrations: []Registration{
			{Event: "tick", Handler: func(ctxAny any, args callback.Args) (callback.Flag, callback.Args, error) {
				order = append(order, "second")
				ctxAny.(*Engine).Stop()
				return callback.Continue, args, nil
			}},
		},
	}

	e := New([]Component{c1, c2})
	e.Schedule("tick", nil)
	err := e.Run()
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, order)
}

func TestRecoverableHandlerErrorContinuesLoop(t *testing.T) {
	var secondRan bool
	c := &fnComponent{
		name: "flaky",
		registrations: []Registration{
			{Event: "boom", Handler: func(ctxAny any, args callback.Args) (callback.Flag, callback.Args, error) {
				return callback.Continue, args, Recoverable(fmt.Errorf("transient"))
			}},
			{Event: "after", Handler: func(ctxAny any, args callback.Args) (callback.Flag, callback.Args, error) {
				secondRan = true
				ctxAny.(*Engine).Stop()
				return callback.Continue, args, nil
			}},
		},
	}
	e := New([]Component{c})
	e.Schedule("boom", nil)
	e.Schedule("after", nil)

	err := e.Run()
	require.NoError(t, err)
	assert.True(t, secondRan)
}

func TestEmptyQueueExitsCleanly(t *testing.T) {
	e := New(nil)
	err := e.Run()
	require.NoError(t, err)
}

func TestTimedEventRunsAfterDelay(t *testing.T) {
	c := &fnComponent{
		name: "later",
		registrations: []Registration{
			{Event: "later", Handler: func(ctxAny any, args callback.Args) (callback.Flag, callback.Args, error) {
				ctxAny.(*Engine).Stop()
				return callback.Continue, args, nil
			}},
		},
	}
	e := New([]Component{c})
	e.ScheduleAfter(50*time.Millisecond, "later", nil)

	start := time.Now()
	err := e.Run()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestStatisticsDerivation(t *testing.T) {
	c := &fnComponent{
		name: "counter",
		registrations: []Registration{
			{Event: "noop", Handler: func(ctxAny any, args callback.Args) (callback.Flag, callback.Args, error) {
				return callback.Continue, args, nil
			}},
		},
	}
	e := New([]Component{c})

	first := e.Statistics()
	require.Contains(t, first, "components")

	second := e.Statistics()
	require.Contains(t, second, "components")
}
