package callback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortCircuitStopsRemainingHandlers(t *testing.T) {
	r := New()
	var ran []string

	r.Register("tick", nil, "h1", func(_ any, args Args) (Flag, Args, error) {
		ran = append(ran, "h1")
		return Stop, args, nil
	}, false)
	r.Register("tick", nil, "h2", func(_ any, args Args) (Flag, Args, error) {
		ran = append(ran, "h2")
		return Continue, args, nil
	}, false)
	r.Register("tick", nil, "h3", func(_ any, args Args) (Flag, Args, error) {
		ran = append(ran, "h3")
		return Continue, args, nil
	}, false)

	chain, ok := r.Handlers("tick")
	require.True(t, ok)

	var args Args
	for _, h := range chain {
		flag, next, err := h.Func(nil, args)
		require.NoError(t, err)
		args = next
		if flag == Stop {
			break
		}
	}

	assert.Equal(t, []string{"h1"}, ran)
}

func TestPrependPlacesHandlerAtHead(t *testing.T) {
	r := New()
	r.Register("tick", nil, "tail", func(_ any, args Args) (Flag, Args, error) {
		return Continue, args, nil
	}, false)
	r.Register("tick", nil, "head", func(_ any, args Args) (Flag, Args, error) {
		return Continue, args, nil
	}, true)

	chain, _ := r.Handlers("tick")
	require.Len(t, chain, 2)
	assert.Equal(t, "head", chain[0].Name)
	assert.Equal(t, "tail", chain[1].Name)
}

func TestHandlersReturnsFalseForUnknownEvent(t *testing.T) {
	r := New()
	_, ok := r.Handlers("nope")
	assert.False(t, ok)
}

func TestHandlersSnapshotIsolatesSelfRegistration(t *testing.T) {
	r := New()
	r.Register("tick", nil, "self-registering", func(_ any, args Args) (Flag, Args, error) {
		// Registers a further handler mid-dispatch; must not affect the
		// chain already captured for this dispatch.
		r.Register("tick", nil, "late", func(_ any, a Args) (Flag, Args, error) {
			return Continue, a, nil
		}, false)
		return Continue, args, nil
	}, false)

	chain, _ := r.Handlers("tick")
	require.Len(t, chain, 1)

	_, _, err := chain[0].Func(nil, nil)
	require.NoError(t, err)
	assert.Len(t, chain, 1)

	chain2, _ := r.Handlers("tick")
	assert.Len(t, chain2, 2)
}
