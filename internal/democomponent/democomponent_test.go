package democomponent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daemonkit/daemonkit/internal/engine"
)

func TestComponentTicksAndStopsOnEngineStop(t *testing.T) {
	c := New(time.Millisecond)
	eng := engine.New([]engine.Component{c})

	go func() {
		time.Sleep(20 * time.Millisecond)
		eng.Stop()
	}()

	err := eng.Run()
	require.NoError(t, err)

	state := c.State()
	ticks, ok := state["ticks"].(int64)
	require.True(t, ok)
	assert.Greater(t, ticks, int64(0))
}

func TestNewDefaultsIntervalWhenNonPositive(t *testing.T) {
	c := New(0)
	assert.Equal(t, time.Second, c.interval)

	c2 := New(-5 * time.Second)
	assert.Equal(t, time.Second, c2.interval)
}

func TestStatisticsMirrorsState(t *testing.T) {
	c := New(time.Millisecond)
	eng := engine.New([]engine.Component{c})
	go func() {
		time.Sleep(10 * time.Millisecond)
		eng.Stop()
	}()
	require.NoError(t, eng.Run())

	assert.Equal(t, c.State()["ticks"], c.Statistics()["ticks"])
}
