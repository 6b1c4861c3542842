package audit

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultWindow is the number of entries kept in memory for the activity view.
const DefaultWindow = 500

// Sink persists entries. Persisted storage keeps every entry.
type Sink interface {
	Insert(ctx context.Context, entry Entry) error
}

// Observer is notified of every appended entry.
type Observer interface {
	ObserveAudit(entry Entry)
}

// TrailConfig collects Trail dependencies.
type TrailConfig struct {
	// Window bounds the in-memory copy used for display. It is not a retention
	// policy: entries beyond it are only dropped from memory, never from Sink.
	Window   int
	Sink     Sink
	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Trail is the append-only governance log.
type Trail struct {
	mu       sync.Mutex
	entries  []Entry
	window   int
	sink     Sink
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
	entropy  *ulid.MonotonicEntropy
}

// NewTrail builds a Trail.
func NewTrail(cfg TrailConfig) *Trail {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Trail{
		window:   window,
		sink:     cfg.Sink,
		observer: cfg.Observer,
		logger:   logger,
		now:      now,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Append stamps and records an entry. It never fails: a persistence error is
// logged and the entry stays in the in-memory window.
func (t *Trail) Append(ctx context.Context, entry Entry) Entry {
	entry = entry.clone()

	t.mu.Lock()
	entry.At = t.now().UTC()
	entry.ID = ulid.MustNew(ulid.Timestamp(entry.At), t.entropy).String()
	t.entries = append(t.entries, entry)
	if overflow := len(t.entries) - t.window; overflow > 0 {
		t.entries = append(t.entries[:0:0], t.entries[overflow:]...)
	}
	t.mu.Unlock()

	if t.sink != nil {
		if err := t.sink.Insert(ctx, entry); err != nil {
			t.logger.Warn("persist audit entry",
				slog.String("id", entry.ID),
				slog.String("action", string(entry.Action)),
				slog.String("entity", string(entry.Entity)),
				slog.Any("error", err))
		}
	}
	if t.observer != nil {
		t.observer.ObserveAudit(entry)
	}
	return entry.clone()
}

// Recent returns the in-memory window in chronological order.
func (t *Trail) Recent() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.clone()
	}
	return out
}

// Seed loads persisted history (chronological) ahead of anything appended
// since start-up, keeping the window bound.
func (t *Trail) Seed(history []Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	merged := make([]Entry, 0, len(history)+len(t.entries))
	seen := make(map[string]struct{}, len(t.entries))
	for _, e := range t.entries {
		seen[e.ID] = struct{}{}
	}
	for _, e := range history {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		merged = append(merged, e.clone())
	}
	merged = append(merged, t.entries...)
	if overflow := len(merged) - t.window; overflow > 0 {
		merged = merged[overflow:]
	}
	t.entries = merged
}
