package audit

import "context"

// MemoryHistory serves the timeline from the trail's in-memory window. It is
// used when no persisted history is available.
type MemoryHistory struct {
	trail *Trail
}

// NewMemoryHistory wraps a trail.
func NewMemoryHistory(trail *Trail) *MemoryHistory {
	return &MemoryHistory{trail: trail}
}

// TimelineWindow implements Repository.
func (m *MemoryHistory) TimelineWindow(ctx context.Context, q TimelineQuery) ([]Entry, error) {
	all, err := m.TimelineAll(ctx, q)
	if err != nil {
		return nil, err
	}
	if q.Offset >= len(all) {
		return []Entry{}, nil
	}
	all = all[q.Offset:]
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, nil
}

// TimelineAll implements Repository.
func (m *MemoryHistory) TimelineAll(ctx context.Context, q TimelineQuery) ([]Entry, error) {
	recent := m.trail.Recent()
	out := make([]Entry, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		if q.matches(recent[i]) {
			out = append(out, recent[i])
		}
	}
	return out, nil
}
