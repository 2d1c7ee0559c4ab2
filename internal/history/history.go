// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package history implements the append-only record of received fixes that backs the display.
package history

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wneessen/fixtrail/internal/location"
	"github.com/wneessen/fixtrail/internal/vartype"
)

// ErrIndexOutOfRange is returned by Get for an index outside of [0, Count()).
var ErrIndexOutOfRange = errors.New("history index out of range")

// EventKind identifies the mutation an Event reports.
type EventKind int

const (
	// EventAppended is sent after a fix has been appended to the sequence.
	EventAppended EventKind = iota
	// EventLastKnown is sent after the last-known slot has been set.
	EventLastKnown
)

func (k EventKind) String() string {
	switch k {
	case EventAppended:
		return "appended"
	case EventLastKnown:
		return "last-known"
	default:
		return "unknown"
	}
}

// Event describes a single History mutation. Index is the position of the appended fix and -1
// for EventLastKnown.
type Event struct {
	Kind  EventKind
	Index int
	Fix   location.Fix
}

// History is an ordered, append-only sequence of fixes plus a distinguished last-known slot that
// is not part of the sequence. It is safe for concurrent use.
type History struct {
	mu          sync.RWMutex
	fixes       []location.Fix
	lastKnown   vartype.VarFix
	subscribers map[chan Event]struct{}
}

// New returns an empty History with an unset last-known slot.
func New() *History {
	return &History{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Append adds fix to the end of the sequence and returns its index. Fixes are never rejected.
func (h *History) Append(fix location.Fix) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fixes = append(h.fixes, fix)
	idx := len(h.fixes) - 1
	h.broadcast(Event{Kind: EventAppended, Index: idx, Fix: fix})
	return idx
}

// Count returns the length of the sequence.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.fixes)
}

// Get returns the fix at index in insertion order.
func (h *History) Get(index int) (location.Fix, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if index < 0 || index >= len(h.fixes) {
		return location.Fix{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(h.fixes))
	}
	return h.fixes[index], nil
}

// Snapshot returns a copy of the fixes in [from, Count()). A negative from is treated as 0.
func (h *History) Snapshot(from int) []location.Fix {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if from < 0 {
		from = 0
	}
	if from >= len(h.fixes) {
		return nil
	}
	out := make([]location.Fix, len(h.fixes)-from)
	copy(out, h.fixes[from:])
	return out
}

// SetLastKnown replaces the last-known slot. The sequence is not touched.
func (h *History) SetLastKnown(fix location.Fix) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastKnown.Set(fix)
	h.broadcast(Event{Kind: EventLastKnown, Index: -1, Fix: fix})
}

// LastKnown returns the last-known fix, or false if it has not been set yet.
func (h *History) LastKnown() (location.Fix, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastKnown.Get()
}

// Subscribe registers a change listener with the given buffer size. Events are delivered
// without blocking: a subscriber whose buffer is full misses the event and is expected to
// catch up through Count and Get. The returned function unsubscribes and closes the channel.
func (h *History) Subscribe(size int) (<-chan Event, func()) {
	ch := make(chan Event, size)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// broadcast must be called with h.mu held.
func (h *History) broadcast(ev Event) {
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
