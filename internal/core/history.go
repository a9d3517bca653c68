package core

import "iter"

const (
	// HistoryCapacity is how many messages the hub retains.
	HistoryCapacity = 100
	// ReplaySize is how many messages a joiner receives.
	ReplaySize = 50
)

// History is a fixed-capacity ring of messages in append order.
// It is not safe for concurrent use; the hub guards it.
type History struct {
	buf   []Message
	total uint64 // messages ever appended
}

// NewHistory returns an empty ring holding at most capacity messages.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &History{buf: make([]Message, capacity)}
}

// Append stores m, evicting the oldest message when full.
func (h *History) Append(m Message) {
	h.buf[h.total%uint64(len(h.buf))] = m
	h.total++
}

// Len reports the number of retained messages.
func (h *History) Len() int {
	return int(min(h.total, uint64(len(h.buf))))
}

// Recent returns the last n retained messages, oldest first.
// The window is fixed when Recent is called; iterating again yields the same
// messages unless they were evicted in between, in which case they are skipped.
func (h *History) Recent(n int) iter.Seq[Message] {
	end := h.total
	start := end - uint64(h.Len())
	if n < 0 {
		n = 0
	}
	if uint64(n) < end-start {
		start = end - uint64(n)
	}
	return func(yield func(Message) bool) {
		capacity := uint64(len(h.buf))
		for i := start; i < end; i++ {
			if h.total-i > capacity {
				continue
			}
			if !yield(h.buf[i%capacity]) {
				return
			}
		}
	}
}
