/**
 * CONTEXT:   Statistics derivation for per-component numeric counter trees
 * INPUT:     A component's current Statistics() tree and the engine's previous snapshot of it
 * OUTPUT:    A same-shaped tree of {cnt, inc, spd, pct} records per counter
 * BUSINESS:  Operators watch spd/pct to see rate-of-change, not just totals, between polls
 * CHANGE:    Initial implementation
 * RISK:      Low - Pure computation with no side effects beyond snapshot bookkeeping
 */

package engine

import (
	"encoding/json"
	"time"
)

// pctUndefinedError is the concrete type behind ErrPctUndefined. It
// implements error, so callers can still detect it with
// errors.Is(err, ErrPctUndefined), and json.Marshaler, so a "pct" leaf
// holding it serializes as a readable string instead of falling through
// encoding/json's reflection and losing its meaning as "{}".
type pctUndefinedError struct{}

func (pctUndefinedError) Error() string { return "engine: pct undefined for zero-valued counter" }

func (pctUndefinedError) MarshalJSON() ([]byte, error) {
	return json.Marshal("undefined: pct undefined for zero-valued counter")
}

// ErrPctUndefined marks a counter whose current value is zero, for which
// percent-of-current is mathematically undefined. Per the engine's resolved
// open question, this is surfaced as an error value embedded in the derived
// record's "pct" field rather than silently defaulting to zero; its
// MarshalJSON keeps that meaning intact wherever the stats tree is
// persisted or logged as JSON.
var ErrPctUndefined error = pctUndefinedError{}

// deriveStats folds current against previous into the {cnt, inc, spd, pct}
// shape, recursing into nested maps. elapsed is the number of seconds since
// previous was captured; a non-positive elapsed yields spd=0 rather than
// dividing by zero.
func deriveStats(current, previous map[string]any, elapsed float64) map[string]any {
	out := make(map[string]any, len(current))
	for key, v := range current {
		switch val := v.(type) {
		case map[string]any:
			var prevSub map[string]any
			if previous != nil {
				prevSub, _ = previous[key].(map[string]any)
			}
			out[key] = deriveStats(val, prevSub, elapsed)

		default:
			b, isNumeric := toFloat64(val)
			if !isNumeric {
				// Non-numeric leaves produce a record holding only the raw
				// value under "cnt"; they get no inc, spd or pct.
				out[key] = map[string]any{"cnt": val}
				continue
			}

			a := 0.0
			if previous != nil {
				if pv, ok := previous[key]; ok {
					if pf, ok := toFloat64(pv); ok {
						a = pf
					}
				}
			}

			inc := b - a
			rec := map[string]any{"cnt": val, "inc": inc}
			if elapsed > 0 {
				rec["spd"] = inc / elapsed
			} else {
				rec["spd"] = 0.0
			}
			if b == 0 {
				rec["pct"] = ErrPctUndefined
			} else {
				rec["pct"] = inc / (b / 100)
			}
			out[key] = rec
		}
	}
	return out
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Statistics returns the sample time plus a per-component map of derived
// counter records. After computing, the raw current snapshot replaces the
// previous one and the per-component timestamp resets, so the next call
// measures the delta since this one.
func (e *Engine) Statistics() map[string]any {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	now := time.Now()
	perComponent := make(map[string]any, len(e.components))

	for _, c := range e.components {
		name := c.Name()
		cur := c.Statistics()

		prev := e.statsPrev[name]
		prevAt, hadPrev := e.statsAt[name]

		elapsed := 0.0
		if hadPrev {
			elapsed = now.Sub(prevAt).Seconds()
		}

		perComponent[name] = deriveStats(cur, prev, elapsed)

		e.statsPrev[name] = cur
		e.statsAt[name] = now
	}

	return map[string]any{
		"time":       now,
		"components": perComponent,
	}
}
