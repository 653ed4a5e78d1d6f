package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders one line per record:
//
//	2026-01-02T15:04:05Z INFO scheduler: job started [job 1a2b3c4d @default #881] pid=42
type consoleHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []kv
	groups    []string
	addSource bool
}

type kv struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	timestamp := record.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	kvs := append(make([]kv, 0, len(h.attrs)+record.NumAttrs()), h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, h.groups, attr)
		return true
	})

	var component string
	var subj subject
	rest := kvs[:0]
	for _, field := range kvs {
		switch field.key {
		case FieldComponent:
			component = attrString(field.value)
		case FieldJobID:
			subj.job = attrString(field.value)
		case FieldQueue:
			subj.queue = attrString(field.value)
		case FieldBatchID:
			subj.batch = attrString(field.value)
		default:
			rest = append(rest, field)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(timestamp.UTC().Format(time.RFC3339))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	buf.WriteByte(' ')
	if component != "" {
		buf.WriteString(component)
		buf.WriteString(": ")
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		buf.WriteString(msg)
	} else {
		buf.WriteString("(no message)")
	}
	if text := subj.String(); text != "" {
		buf.WriteString(" [")
		buf.WriteString(text)
		buf.WriteByte(']')
	}
	if h.addSource && record.PC != 0 {
		frame := record.Source()
		if frame != nil && frame.File != "" {
			fmt.Fprintf(&buf, " (%s:%d)", filepath.Base(frame.File), frame.Line)
		}
	}
	for _, field := range rest {
		if field.key == "" {
			continue
		}
		buf.WriteByte(' ')
		buf.WriteString(field.key)
		buf.WriteByte('=')
		buf.WriteString(formatValue(field.value))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	for _, attr := range attrs {
		flattenAttr(&clone.attrs, clone.groups, attr)
	}
	return clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *consoleHandler) clone() *consoleHandler {
	return &consoleHandler{
		mu:        h.mu,
		writer:    h.writer,
		level:     h.level,
		addSource: h.addSource,
		attrs:     append([]kv(nil), h.attrs...),
		groups:    append([]string(nil), h.groups...),
	}
}

// subject identifies the job a record is about.
type subject struct {
	job, queue, batch string
}

func (s subject) String() string {
	parts := make([]string, 0, 3)
	if s.job != "" {
		id := s.job
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, "job "+id)
	}
	if s.queue != "" {
		parts = append(parts, "@"+s.queue)
	}
	if s.batch != "" {
		parts = append(parts, "#"+s.batch)
	}
	return strings.Join(parts, " ")
}

func flattenAttr(dst *[]kv, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append([]string(nil), prefix...), attr.Key)
		}
		for _, member := range attr.Value.Group() {
			flattenAttr(dst, next, member)
		}
		return
	}
	key := attr.Key
	if len(prefix) > 0 {
		key = strings.Join(append(append([]string(nil), prefix...), key), ".")
	}
	*dst = append(*dst, kv{key: key, value: attr.Value})
}

// attrString renders v without quoting.
func attrString(v slog.Value) string {
	return valueText(v.Resolve())
}

// formatValue renders v for key=value output, quoting when needed.
func formatValue(v slog.Value) string {
	v = v.Resolve()
	text := valueText(v)
	if (v.Kind() == slog.KindString || v.Kind() == slog.KindAny) && needsQuotes(text) {
		return strconv.Quote(text)
	}
	return text
}

func valueText(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
