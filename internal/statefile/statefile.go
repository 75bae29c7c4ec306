/**
 * CONTEXT:   Persists the engine's introspectable state tree to disk as JSON
 * INPUT:     A state tree as produced by engine.Engine.State()
 * OUTPUT:    A pretty-printed, key-sorted JSON file at the configured path
 * BUSINESS:  SIGUSR2 and the status CLI both read this file to answer "what is the daemon doing"
 * CHANGE:    Initial implementation
 * RISK:      Low - Best-effort persistence; a failed write should not crash the daemon
 */

package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/daemonkit/daemonkit/internal/callback"
	"github.com/daemonkit/daemonkit/internal/engine"
)

// Save writes tree to path as pretty-printed JSON. Keys within every map are
// sorted before marshaling; encoding/json already sorts map[string]any keys
// on its own, but the explicit pass also normalizes the non-serializable
// leaves (components, callback handlers, functions) that Fallback replaces,
// so the sort order is stable even across those substitutions.
func Save(path string, tree map[string]any) error {
	normalized := normalize(tree)

	data, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return fmt.Errorf("statefile: marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("statefile: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".statefile-*.tmp")
	if err != nil {
		return fmt.Errorf("statefile: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("statefile: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("statefile: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statefile: close: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("statefile: chmod: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("statefile: rename: %w", err)
	}
	return nil
}

// Load reads back a file written by Save.
func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("statefile: read: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("statefile: unmarshal: %w", err)
	}
	return tree, nil
}

// Fallback renders a value the JSON encoder cannot serialize (a Component or
// a callback.Handler) as a stable "COMPONENT(name)" / "CALLBACK(name)"
// string, per the non-serializable-leaf requirement on the state dump.
func Fallback(v any) (string, bool) {
	switch c := v.(type) {
	case engine.Component:
		return fmt.Sprintf("COMPONENT(%s)", c.Name()), true
	case callback.Handler:
		return fmt.Sprintf("CALLBACK(%s)", c.Name), true
	case callback.HandlerFunc:
		return "CALLBACK(anonymous)", true
	default:
		return "", false
	}
}

// normalize walks tree, replacing any leaf Fallback recognizes and
// recursing into maps and slices so nested non-serializable values (a
// component's own state() blob, say) are handled too.
func normalize(v any) any {
	if s, ok := Fallback(v); ok {
		return s
	}

	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(val))
		for _, k := range keys {
			out[k] = normalize(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	default:
		return val
	}
}
