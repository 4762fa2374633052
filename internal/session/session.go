// Package session holds the mutable state of one dashboard run: the ordered
// server list and the time of the last completed refresh.
//
// A Session is created when the board starts, mutated only by the add-server
// and refresh paths (plus reloads of the persisted list), and discarded when
// the board stops.
package session

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/gpuboard/internal/poller"
	"github.com/jpalmerr/gpuboard/internal/serverlist"
)

// ErrPersist marks an [Session.Add] failure caused by the server list file
// rather than by the addresses themselves.
var ErrPersist = errors.New("failed to persist servers")

// Session is safe for concurrent use.
type Session struct {
	mu          sync.RWMutex
	servers     []string
	lastRefresh time.Time
	file        string
}

// New creates a session with an initial server list. When file is not
// empty, additions are persisted there with [serverlist.Save].
//
// Initial addresses are normalised; invalid ones are rejected with an error
// naming the first offender. Duplicates keep their first occurrence.
func New(initial []string, file string) (*Session, error) {
	s := &Session{file: file}
	for _, raw := range initial {
		addr, err := poller.NormalizeAddress(raw)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(s.servers, addr) {
			s.servers = append(s.servers, addr)
		}
	}
	return s, nil
}

// Servers returns a copy of the current server list in insertion order.
func (s *Session) Servers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.servers)
}

// Add appends addresses that are not yet on the list and persists the list
// if the session is file-backed. Blank entries are skipped.
//
// It returns the addresses that were actually added. If any entry is
// invalid nothing is added.
func (s *Session) Add(raw ...string) ([]string, error) {
	var candidates []string
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		addr, err := poller.NormalizeAddress(r)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, addr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	next := slices.Clone(s.servers)
	for _, addr := range candidates {
		if slices.Contains(next, addr) {
			continue
		}
		next = append(next, addr)
		added = append(added, addr)
	}
	if len(added) == 0 {
		return nil, nil
	}

	if s.file != "" {
		if err := serverlist.Save(s.file, next); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersist, err)
		}
	}
	s.servers = next
	return added, nil
}

// Replace swaps the whole list, typically after the persisted file was
// edited by hand. Invalid entries are dropped. It reports whether the list
// changed.
func (s *Session) Replace(raw []string) bool {
	var next []string
	for _, r := range raw {
		addr, err := poller.NormalizeAddress(r)
		if err != nil {
			continue
		}
		if !slices.Contains(next, addr) {
			next = append(next, addr)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Equal(s.servers, next) {
		return false
	}
	s.servers = next
	return true
}

// MarkRefreshed records the completion time of a poll cycle.
func (s *Session) MarkRefreshed(t time.Time) {
	s.mu.Lock()
	s.lastRefresh = t
	s.mu.Unlock()
}

// LastRefresh returns the completion time of the last poll cycle, or the
// zero time if none has completed.
func (s *Session) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}
