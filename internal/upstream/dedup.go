package upstream

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type completion struct {
	payload Payload
	err     error
	at      time.Time
}

// Deduplicator suppresses repeated identical calls. Concurrent callers for the
// same key share a single in-flight call, and a call that completed within the
// window is answered from its remembered result.
type Deduplicator struct {
	window time.Duration
	now    func() time.Time
	group  singleflight.Group

	mu     sync.Mutex
	recent map[string]completion
}

func NewDeduplicator(window time.Duration) *Deduplicator {
	return &Deduplicator{
		window: window,
		now:    time.Now,
		recent: make(map[string]completion),
	}
}

// Recent returns the remembered result of a call that completed within the
// window. Only results worth replaying are remembered: successes and
// terminal client errors.
func (d *Deduplicator) Recent(key string) (Payload, error, bool) {
	if d.window <= 0 {
		return nil, nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.recent[key]
	if !ok {
		return nil, nil, false
	}
	if d.now().Sub(c.at) > d.window {
		delete(d.recent, key)
		return nil, nil, false
	}
	return c.payload, c.err, true
}

// Do runs fn once for all concurrent callers sharing key. shared reports
// whether this caller received another caller's result.
func (d *Deduplicator) Do(key string, fn func() (Payload, error)) (Payload, error, bool) {
	v, err, shared := d.group.Do(key, func() (any, error) {
		p, err := fn()
		return p, err
	})
	p, _ := v.(Payload)
	return p, err, shared
}

// Remember stores a completed result for the window.
func (d *Deduplicator) Remember(key string, payload Payload, err error) {
	if d.window <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, c := range d.recent {
		if now.Sub(c.at) > d.window {
			delete(d.recent, k)
		}
	}
	d.recent[key] = completion{payload: payload, err: err, at: now}
}
