package tracker

import "github.com/nozo-moto/tcpcount/pkg/types"

// History is a fixed-capacity ring of per-tick samples. Once full, each Push
// overwrites the oldest sample. Not safe for concurrent use.
type History struct {
	buf  []types.HistorySample
	head int
	size int
}

// NewHistory creates a ring with the given capacity (at least 1).
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]types.HistorySample, capacity)}
}

func (h *History) Push(s types.HistorySample) {
	h.buf[h.head] = s
	h.head = (h.head + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

func (h *History) Len() int { return h.size }

func (h *History) Cap() int { return len(h.buf) }

// Samples returns a copy of the retained samples, oldest first.
func (h *History) Samples() []types.HistorySample {
	out := make([]types.HistorySample, h.size)
	start := (h.head - h.size + len(h.buf)) % len(h.buf)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(start+i)%len(h.buf)]
	}
	return out
}

func (h *History) Reset() {
	for i := range h.buf {
		h.buf[i] = types.HistorySample{}
	}
	h.head, h.size = 0, 0
}
