/**
 * CONTEXT:   Legacy line-oriented log format, adapted into a slog.Handler
 * INPUT:     slog.Record values from the engine and CLI
 * OUTPUT:    "[timestamp] LEVEL [component] msg key=val ..." lines on the given writer
 * BUSINESS:  Some operators' log scrapers still expect the original line format; keep it selectable
 * CHANGE:    Reworked the standalone DefaultLogger type into an slog.Handler
 * RISK:      Low - Logging only; a formatting bug here must never affect the engine's control flow
 */

package legacylog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Handler implements slog.Handler using the original bracketed line format
// instead of slog's built-in text/JSON handlers, so callers who select
// "legacy" logging get byte-for-byte the same shape the old DefaultLogger
// produced.
type Handler struct {
	mu        *sync.Mutex
	w         io.Writer
	component string
	level     slog.Leveler
	attrs     []slog.Attr
	groups    []string
}

// NewHandler builds a Handler writing to w, tagging every line with
// component and filtering below level.
func NewHandler(w io.Writer, component string, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{
		mu:        &sync.Mutex{},
		w:         w,
		component: component,
		level:     level,
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var fields strings.Builder
	for _, a := range h.attrs {
		writeAttr(&fields, h.groups, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&fields, h.groups, a)
		return true
	})

	line := fmt.Sprintf("[%s] %s [%s] %s%s\n",
		r.Time.Format("2006-01-02T15:04:05.000Z07:00"),
		levelName(r.Level),
		h.component,
		r.Message,
		fields.String(),
	)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line)
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

func writeAttr(b *strings.Builder, groups []string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	fmt.Fprintf(b, " %s=%v", key, a.Value.Any())
}

func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel converts a level name to a slog.Level, defaulting to Info for
// anything unrecognized.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
