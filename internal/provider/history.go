package provider

import (
	"sync"
	"time"
)

// exchange is one prompt and the completion it produced.
type exchange struct {
	Prompt     string
	Completion string
}

// history keeps the most recent exchanges, oldest first.
type history struct {
	mu    sync.Mutex
	size  int
	items []exchange
}

func newHistory(size int) *history {
	if size < 0 {
		size = 0
	}
	return &history{size: size}
}

func (h *history) add(prompt, completion string) {
	if h.size == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, exchange{Prompt: prompt, Completion: completion})
	if over := len(h.items) - h.size; over > 0 {
		h.items = append([]exchange(nil), h.items[over:]...)
	}
}

func (h *history) snapshot() []exchange {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]exchange(nil), h.items...)
}

// keyRing rotates through API keys on a fixed interval.
type keyRing struct {
	mu       sync.Mutex
	keys     []string
	interval time.Duration
	idx      int
	rotated  time.Time
	now      func() time.Time
}

func newKeyRing(keys []string, interval time.Duration) *keyRing {
	r := &keyRing{keys: keys, interval: interval, now: time.Now}
	r.rotated = r.now()
	return r
}

// current returns the active key, advancing first if the interval has
// elapsed.
func (r *keyRing) current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return ""
	}
	if len(r.keys) > 1 && r.interval > 0 && r.now().Sub(r.rotated) >= r.interval {
		r.advanceLocked()
	}
	return r.keys[r.idx]
}

// advance switches to the next key immediately, e.g. after a rate limit.
func (r *keyRing) advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advanceLocked()
}

func (r *keyRing) advanceLocked() {
	if len(r.keys) > 1 {
		r.idx = (r.idx + 1) % len(r.keys)
	}
	r.rotated = r.now()
}
