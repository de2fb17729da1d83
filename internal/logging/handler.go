package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
)

const (
	// tailSize bounds the in-memory record tail.
	tailSize = 256

	// watchBuffer is the per-watcher channel depth. A watcher that falls
	// behind misses records rather than blocking the logging path.
	watchBuffer = 64
)

// Attr is one key-value pair on a captured record.
type Attr struct {
	Key   string
	Value string
}

// Record is one captured log line.
type Record struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   []Attr
}

// handlerState is shared between a Handler and its WithAttrs/WithGroup
// derivatives: one output stream, one tail, one watcher set.
type handlerState struct {
	mu       sync.Mutex
	out      io.Writer
	ring     [tailSize]Record
	count    int
	next     int
	watchers map[chan Record]struct{}
}

// Handler is a slog.Handler that writes logfmt lines for operators and
// retains the most recent records in a bounded in-memory tail that
// diagnostics can read back or watch live.
type Handler struct {
	state *handlerState
	level slog.Level
	attrs []Attr
	group string
}

// NewHandler creates a handler writing logfmt records to out.
func NewHandler(out io.Writer, level slog.Level) *Handler {
	return &Handler{
		state: &handlerState{
			out:      out,
			watchers: make(map[chan Record]struct{}),
		},
		level: level,
	}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	rec := Record{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
	}
	rec.Attrs = append(rec.Attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs = append(rec.Attrs, Attr{Key: h.key(a.Key), Value: a.Value.String()})
		return true
	})

	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := logfmt.NewEncoder(s.out)
	enc.EncodeKeyval("time", rec.Time.Format(time.RFC3339))
	enc.EncodeKeyval("level", strings.ToLower(rec.Level.String()))
	enc.EncodeKeyval("msg", rec.Message)
	for _, a := range rec.Attrs {
		enc.EncodeKeyval(a.Key, a.Value)
	}
	if err := enc.EndRecord(); err != nil {
		return err
	}

	s.ring[s.next] = rec
	s.next = (s.next + 1) % tailSize
	if s.count < tailSize {
		s.count++
	}

	for ch := range s.watchers {
		select {
		case ch <- rec:
		default:
			// watcher buffer full, drop
		}
	}
	return nil
}

// WithAttrs implements slog.Handler. The derived handler shares the output
// stream, tail, and watchers.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	child := *h
	child.attrs = make([]Attr, 0, len(h.attrs)+len(attrs))
	child.attrs = append(child.attrs, h.attrs...)
	for _, a := range attrs {
		child.attrs = append(child.attrs, Attr{Key: h.key(a.Key), Value: a.Value.String()})
	}
	return &child
}

// WithGroup implements slog.Handler. Group names become dotted prefixes on
// attribute keys.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	child := *h
	child.group = h.key(name)
	return &child
}

func (h *Handler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

// Tail returns up to n of the most recently handled records, oldest first.
func (h *Handler) Tail(n int) []Record {
	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > s.count {
		n = s.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]Record, 0, n)
	start := s.next - n
	if start < 0 {
		start += tailSize
	}
	for i := 0; i < n; i++ {
		out = append(out, s.ring[(start+i)%tailSize])
	}
	return out
}

// Watch registers a live record stream. The channel closes when ctx is
// canceled; a watcher that stops draining misses records.
func (h *Handler) Watch(ctx context.Context) <-chan Record {
	ch := make(chan Record, watchBuffer)
	s := h.state

	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}
