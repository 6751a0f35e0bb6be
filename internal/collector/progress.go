package collector

import (
	"sync"
	"time"
)

// Progress is a point-in-time view of one keyword session.
type Progress struct {
	Keyword    string       `json:"keyword"`
	State      SessionState `json:"state"`
	StopReason StopReason   `json:"stop_reason,omitempty"`
	Target     int          `json:"target"`
	Pages      int          `json:"pages"`
	Collected  int          `json:"collected"`
	Failed     bool         `json:"failed,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// progressBoard holds the latest Progress of every session of the current
// Collect call, in keyword order.
type progressBoard struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]Progress
}

func newProgressBoard() *progressBoard {
	return &progressBoard{entries: make(map[string]Progress)}
}

func (b *progressBoard) reset(keywords []string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.order = append(b.order[:0], keywords...)
	b.entries = make(map[string]Progress, len(keywords))
	for _, kw := range keywords {
		b.entries[kw] = Progress{Keyword: kw, State: StateStarting, UpdatedAt: now}
	}
}

func (b *progressBoard) update(s *Session, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[s.Keyword]; !ok {
		b.order = append(b.order, s.Keyword)
	}
	b.entries[s.Keyword] = Progress{
		Keyword:    s.Keyword,
		State:      s.State,
		StopReason: s.StopReason,
		Target:     s.Target,
		Pages:      s.Pages,
		Collected:  len(s.Listings),
		Failed:     s.Err != nil,
		UpdatedAt:  now,
	}
}

func (b *progressBoard) snapshot() []Progress {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Progress, 0, len(b.order))
	for _, kw := range b.order {
		out = append(out, b.entries[kw])
	}
	return out
}

// Progress reports the sessions of the most recent Collect call, including
// ones still paging.
func (c *Collector) Progress() []Progress {
	return c.progress.snapshot()
}

func (c *Collector) track(s *Session) {
	c.progress.update(s, c.now())
}
