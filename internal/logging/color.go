package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ColorHandler writes one human-readable line per record with the level and
// attribute keys coloured.
type ColorHandler struct {
	mu     *sync.Mutex
	l      *log.Logger
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func NewColorHandler(out io.Writer, level slog.Level) *ColorHandler {
	return &ColorHandler{
		mu:    &sync.Mutex{},
		l:     log.New(out, "", 0),
		level: level,
	}
}

func (c *ColorHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String() + ":"

	switch {
	case r.Level >= slog.LevelError:
		level = color.RedString(level)
	case r.Level >= slog.LevelWarn:
		level = color.YellowString(level)
	case r.Level >= slog.LevelInfo:
		level = color.HiBlueString(level)
	default:
		level = color.MagentaString(level)
	}

	var sb strings.Builder
	for _, a := range c.attrs {
		writeAttr(&sb, "", a)
	}
	prefix := strings.Join(c.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, prefix, a)
		return true
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.l.Println(
		r.Time.Format("15:04:05.000"),
		level,
		r.Message,
		strings.TrimSpace(sb.String()),
	)
	return nil
}

func writeAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(sb, key, ga)
		}
		return
	}
	sb.WriteString(color.GreenString(key))
	sb.WriteString("=")
	sb.WriteString(fmt.Sprint(a.Value.Any()))
	sb.WriteString(" ")
}

func (c *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *c
	prefix := strings.Join(c.groups, ".")
	out.attrs = append([]slog.Attr(nil), c.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a = slog.Group(prefix, a)
		}
		out.attrs = append(out.attrs, a)
	}
	return &out
}

func (c *ColorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return c
	}
	out := *c
	out.groups = append(append([]string(nil), c.groups...), name)
	return &out
}

func (c *ColorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= c.level
}
