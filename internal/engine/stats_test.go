package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveStatsComputesCntIncSpdPct(t *testing.T) {
	current := map[string]any{"events": 110}
	previous := map[string]any{"events": 100}

	out := deriveStats(current, previous, 10)
	rec, ok := out["events"].(map[string]any)
	require.True(t, ok)

	assert.Equal(t, 110, rec["cnt"])
	assert.Equal(t, 10.0, rec["inc"])
	assert.Equal(t, 1.0, rec["spd"])
	assert.InDelta(t, 10.0/1.1, rec["pct"].(float64), 0.0001)
}

func TestDeriveStatsPctUndefinedWhenCurrentIsZero(t *testing.T) {
	current := map[string]any{"events": 0}
	previous := map[string]any{"events": 5}

	out := deriveStats(current, previous, 1)
	rec := out["events"].(map[string]any)

	assert.ErrorIs(t, rec["pct"].(error), ErrPctUndefined)
}

func TestErrPctUndefinedMarshalsAsReadableString(t *testing.T) {
	data, err := json.Marshal(ErrPctUndefined)
	require.NoError(t, err)

	var s string
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Contains(t, s, "undefined")
}

func TestErrPctUndefinedSurvivesRoundTripInsideStatsTree(t *testing.T) {
	current := map[string]any{"events": 0}
	out := deriveStats(current, nil, 1)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "{}")

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	pct, _ := decoded["events"]["pct"].(string)
	assert.Contains(t, pct, "undefined")
}

func TestErrPctUndefinedIsAnError(t *testing.T) {
	var target error = ErrPctUndefined
	assert.True(t, errors.Is(target, ErrPctUndefined))
}
