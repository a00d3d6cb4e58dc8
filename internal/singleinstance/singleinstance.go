// Package singleinstance guards against two DirShare processes watching
// the same shared directory concurrently, which would otherwise race two
// independent DirectoryScanners and SuppressionSets against one
// filesystem. This is an operational safety net, not a spec.md
// synchronisation invariant: it lives here rather than in engine so that
// engine stays testable without ever touching a real file lock.
package singleinstance

import (
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ErrAlreadyRunning is returned by Acquire when another process already
// holds the lock for dir.
var ErrAlreadyRunning = errors.New("singleinstance: another dirshare process is already watching this directory")

// Lock holds an advisory, exclusive lock on a directory for the lifetime
// of one engine run.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes an exclusive, non-blocking lock on a file sibling to dir
// (never inside it — dir is the shared directory DirectoryScanner walks,
// and a lock file living inside it would itself become a spurious synced
// file). Returns ErrAlreadyRunning if another process already holds it.
func Acquire(dir string) (*Lock, error) {
	clean := filepath.Clean(dir)
	lockPath := clean + ".dirshare.lock"

	fl := flock.New(lockPath)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "singleinstance: lock attempt failed")
	}

	if !ok {
		return nil, ErrAlreadyRunning
	}

	return &Lock{fl: fl}, nil
}

// Release unlocks the directory. Safe to call once; DirShare calls it
// during EngineLoop shutdown.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
