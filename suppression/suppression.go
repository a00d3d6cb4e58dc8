// Package suppression implements the SuppressionSet (spec §4.C): a
// thread-safe set of idents currently being written from a remote peer, so
// the local DirectoryScanner knows to hold its tongue and not re-publish a
// change it did not originate. It is the only structure shared and
// mutated across the scanner and applier goroutines (spec §5).
//
// The shape mirrors the teacher's internal/ownwrites cache — a mutex
// guarding a small map, used there to mask a process's own writes from its
// own eventually-consistent storage view — generalized here from a
// blob-ID cache with a TTL to a plain set with no TTL, since the applier
// always clears its own entries explicitly.
package suppression

import "sync"

// Set is a mutex-protected set of idents. The zero value is ready to use.
type Set struct {
	mu      sync.Mutex
	members map[string]struct{}
}

// New returns an empty, ready-to-use Set. Equivalent to the zero value;
// provided for symmetry with the rest of the package constructors.
func New() *Set {
	return &Set{}
}

// Suppress marks ident as being written from the remote side. Idempotent:
// suppressing an already-suppressed ident is a no-op.
func (s *Set) Suppress(ident string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.members == nil {
		s.members = make(map[string]struct{})
	}

	s.members[ident] = struct{}{}
}

// Resume clears the suppression on ident. A no-op if ident was not
// suppressed.
func (s *Set) Resume(ident string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.members, ident)
}

// IsSuppressed reports whether ident is currently suppressed.
func (s *Set) IsSuppressed(ident string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.members[ident]

	return ok
}
