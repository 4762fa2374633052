package store

import (
	"sort"
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity. Boards are whole
// snapshots, so a subscriber that misses some only ever needs the latest.
const subscriberBuffer = 16

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore provides thread-safe storage of the latest [Board] with a
// publish-subscribe mechanism for real-time updates. Each publish replaces
// the previous board entirely.
//
// Updates are sent non-blocking; if a subscriber's buffer is full, the update
// is dropped for that subscriber to prevent blocking the entire system.
type MemoryStore struct {
	mu          sync.RWMutex
	board       Board
	subscribers map[chan Board]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
//
// The store is immediately ready for use and starts with an empty board.
// No cleanup is required when done.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscribers: make(map[chan Board]struct{}),
	}
}

// Publish stores a [Board] and notifies all subscribers.
//
// Rows are sorted by address so the table does not reshuffle between
// cycles. The board is copied; the caller may reuse its slices.
func (m *MemoryStore) Publish(board Board) {
	board = copyBoard(board)
	sort.SliceStable(board.Servers, func(i, j int) bool {
		return board.Servers[i].Address < board.Servers[j].Address
	})

	m.mu.Lock()
	m.board = board
	m.mu.Unlock()

	m.notifySubscribers(copyBoard(board))
}

// Get returns a copy of the current board.
func (m *MemoryStore) Get() Board {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyBoard(m.board)
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Board {
	ch := make(chan Board, subscriberBuffer)
	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// After calling Unsubscribe, the channel will be closed and no further
// updates will be sent. Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Board) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the board to all active subscribers without
// blocking on slow ones.
func (m *MemoryStore) notifySubscribers(board Board) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- board:
		default:
			// subscriber is slow, drop the message
		}
	}
}

// copyBoard copies the slices of a board. Row contents (including the raw
// workflow bytes) are treated as immutable and shared.
func copyBoard(b Board) Board {
	cp := b
	cp.Servers = append([]Row{}, b.Servers...)
	cp.Warnings = append([]Warning{}, b.Warnings...)
	return cp
}
