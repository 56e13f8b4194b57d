package client

import (
	"sync"
	"time"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

// Windows for collapsing server pushes before they reach the view. Game
// snapshots arrive up to 20 times a second; the mirror does not need to
// repaint that often.
const (
	snapshotWindow = 100 * time.Millisecond
	deltaWindow    = 150 * time.Millisecond
)

// debouncer rate-limits full game snapshots to one view application per
// window. The first push in a quiet period applies immediately; pushes
// arriving inside the window replace each other and the latest one lands
// when the window closes. Applies run under the debouncer lock, so after
// Close returns no application can fire.
type debouncer struct {
	window time.Duration
	apply  func(protocol.GameUpdate)

	mu      sync.Mutex
	timer   *time.Timer
	armed   bool
	pending *protocol.GameUpdate
	closed  bool
}

func newDebouncer(window time.Duration, apply func(protocol.GameUpdate)) *debouncer {
	return &debouncer{window: window, apply: apply}
}

func (d *debouncer) Push(u protocol.GameUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.armed {
		d.pending = &u
		return
	}
	d.armed = true
	d.arm()
	d.apply(u)
}

// arm (re)schedules the trailing-edge check. Caller holds mu.
func (d *debouncer) arm() {
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.expire)
		return
	}
	d.timer.Reset(d.window)
}

func (d *debouncer) expire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.pending == nil {
		d.armed = false
		return
	}
	u := *d.pending
	d.pending = nil
	d.arm()
	d.apply(u)
}

// Drop discards any pending snapshot without applying it. Used when the
// room it belonged to is gone.
func (d *debouncer) Drop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
}

// Close stops the timer for good.
func (d *debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
	}
}

// playerDelta is one pending change to a roster row. Nil fields keep the
// current value, so a death and a respawn inside one window net out to the
// final state.
type playerDelta struct {
	playerID string
	alive    *bool
	cause    *string
	killedBy *string
}

// merge folds a newer delta for the same player into d, last value winning
// field by field.
func (d *playerDelta) merge(n playerDelta) {
	if n.alive != nil {
		d.alive = n.alive
	}
	if n.cause != nil {
		d.cause = n.cause
	}
	if n.killedBy != nil {
		d.killedBy = n.killedBy
	}
}

func ptr[T any](v T) *T { return &v }

// batcher coalesces per-player deltas and applies them in one pass when the
// window closes. Passes keep first-arrival player order. Applies run under
// the batcher lock, so after Close returns no pass can fire.
type batcher struct {
	window time.Duration
	apply  func([]playerDelta)

	mu      sync.Mutex
	timer   *time.Timer
	armed   bool
	pending map[string]*playerDelta
	order   []string
	closed  bool
}

func newBatcher(window time.Duration, apply func([]playerDelta)) *batcher {
	return &batcher{
		window:  window,
		apply:   apply,
		pending: make(map[string]*playerDelta),
	}
}

func (b *batcher) Push(d playerDelta) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if cur, ok := b.pending[d.playerID]; ok {
		cur.merge(d)
	} else {
		cp := d
		b.pending[d.playerID] = &cp
		b.order = append(b.order, d.playerID)
	}
	if b.armed {
		return
	}
	b.armed = true
	if b.timer == nil {
		b.timer = time.AfterFunc(b.window, b.expire)
	} else {
		b.timer.Reset(b.window)
	}
}

func (b *batcher) expire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.armed = false
	b.flushLocked()
}

// Flush applies everything pending right away. Bulk roster updates call it
// first so delayed deltas never apply on top of newer authoritative rows.
func (b *batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *batcher) flushLocked() {
	if b.closed || len(b.order) == 0 {
		return
	}
	ds := make([]playerDelta, 0, len(b.order))
	for _, id := range b.order {
		ds = append(ds, *b.pending[id])
	}
	b.pending = make(map[string]*playerDelta, len(b.order))
	b.order = b.order[:0]
	b.apply(ds)
}

// Close drops whatever is pending and stops the timer.
func (b *batcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
	}
	b.pending = nil
	b.order = nil
}
