// Package scanner implements the DirectoryScanner (spec §4.D): periodic
// polling of the shared directory, diffed against the previous tick's
// observations, filtered through the SuppressionSet so remotely-applied
// writes never loop back out as local events.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/dirshare/dirshare/fsadapter"
	"github.com/dirshare/dirshare/integrity"
	"github.com/dirshare/dirshare/internal/logging"
	"github.com/dirshare/dirshare/suppression"
)

var log = logging.GetContextLoggerFunc("dirshare/scanner")

// DefaultInterval is T_scan, spec §4.D's default polling interval.
const DefaultInterval = 2 * time.Second

// observation is a single file's (size, mtime, crc32) as seen on one tick.
// This is ScannerState's value type (spec §3).
type observation struct {
	size      uint64
	mtimeSec  uint64
	mtimeNsec uint32
	crc32     uint32
}

func (a observation) equal(b observation) bool {
	return a == b
}

// Diff is the output of one scan tick: the three filtered sets handed to
// EngineLoop (spec §4.D step 6 / data-flow diagram).
type Diff struct {
	Created  []string
	Modified []string
	Deleted  []string
}

// Empty reports whether the diff carries no changes at all.
func (d Diff) Empty() bool {
	return len(d.Created) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// Scanner polls a single shared directory. Tick is driven by EngineLoop
// from one goroutine (spec §5), but AbsorbLocalWrite is called from the
// applier's inbound-callback goroutines, so previous is guarded by mu
// rather than being exclusively single-goroutine state.
type Scanner struct {
	fs         *fsadapter.Adapter
	suppressed *suppression.Set
	interval   time.Duration

	mu sync.Mutex
	// previous is ScannerState: read and replaced wholesale at the end of
	// every tick (spec §3 invariant), and individually updated by
	// AbsorbLocalWrite when the applier settles an inbound write or
	// delete.
	previous map[string]observation
}

// New returns a Scanner over fs, consulting suppressed to filter diffs.
// interval is T_scan; pass scanner.DefaultInterval for the spec default.
func New(fs *fsadapter.Adapter, suppressed *suppression.Set, interval time.Duration) *Scanner {
	return &Scanner{
		fs:         fs,
		suppressed: suppressed,
		interval:   interval,
		previous:   map[string]observation{},
	}
}

// Tick performs one scan: list, observe, diff, filter, and replace
// ScannerState. It never returns an error — a failure to list the
// directory itself yields an empty Diff and only logs (spec §4.D Failure
// semantics), leaving `previous` untouched so a transient listing failure
// cannot manufacture phantom deletes on the next successful tick.
//
// Tick holds mu for its whole duration so a concurrent AbsorbLocalWrite
// call from the applier is strictly ordered before or after this tick's
// wholesale replacement of previous, never lost in between.
func (s *Scanner) Tick(ctx context.Context) Diff {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.listCurrent(ctx)
	if err != nil {
		log(ctx).Errorf("scan: failed to list directory: %v", err)
		return Diff{}
	}

	diff := diffStates(s.previous, current)
	diff = s.filterSuppressed(ctx, diff)

	// Replace ScannerState wholesale, including unpublished suppressed
	// entries, so the next tick sees a file resumed mid-window as already
	// tracked and does not manufacture a spurious CREATE (spec §4.D step 6).
	s.previous = current

	return diff
}

// Seed initializes ScannerState from the current directory listing
// without producing a Diff. EngineLoop calls this once at startup, before
// the first Tick, so files already present when the engine starts are
// not reported as freshly Created on top of the startup snapshot publish
// (spec §4.I startup sequence).
func (s *Scanner) Seed(ctx context.Context) {
	current, err := s.listCurrent(ctx)
	if err != nil {
		log(ctx).Errorf("scan: seed failed to list directory: %v", err)
		return
	}

	s.mu.Lock()
	s.previous = current
	s.mu.Unlock()
}

// AbsorbLocalWrite tells the scanner that ident's on-disk state was just
// settled by an inbound write or delete, updating ScannerState to match
// before the applier lifts suppression. Without this, suppression alone
// only prevents a republish if a Tick happens to run while the ident is
// still suppressed and absorbs it into previous; in the common case where
// the write completes between ticks, an un-primed previous would make the
// very next Tick see the settled file as a brand-new local change and
// republish it — the echo spec §1/§4.D step 6/P12/S6 forbid (spec §9).
func (s *Scanner) AbsorbLocalWrite(ctx context.Context, ident string) {
	obs, ok := s.observe(ident)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ok {
		s.previous[ident] = obs
	} else {
		delete(s.previous, ident)
	}

	log(ctx).Debugf("absorbed local write for %q into scanner baseline (present=%v)", ident, ok)
}

// listCurrent lists the directory and observes every entry, skipping any
// that vanished or became unreadable between listing and hashing (spec
// §4.D step 2). It does not touch previous: Tick calls it with mu held,
// Seed calls it before taking mu.
func (s *Scanner) listCurrent(ctx context.Context) (map[string]observation, error) {
	idents, err := s.fs.ListRegularFiles(ctx)
	if err != nil {
		return nil, err
	}

	current := make(map[string]observation, len(idents))

	for _, ident := range idents {
		obs, ok := s.observe(ident)
		if !ok {
			continue
		}

		current[ident] = obs
	}

	return current, nil
}

func (s *Scanner) observe(ident string) (observation, bool) {
	size, err := s.fs.GetSize(ident)
	if err != nil {
		return observation{}, false
	}

	mtimeSec, mtimeNsec, err := s.fs.GetMtime(ident)
	if err != nil {
		return observation{}, false
	}

	data, err := s.fs.ReadAll(ident)
	if err != nil {
		return observation{}, false
	}

	return observation{
		size:      size,
		mtimeSec:  mtimeSec,
		mtimeNsec: mtimeNsec,
		crc32:     integrity.CRC32(data),
	}, true
}

func diffStates(previous, current map[string]observation) Diff {
	var d Diff

	for ident, obs := range current {
		prevObs, existed := previous[ident]
		switch {
		case !existed:
			d.Created = append(d.Created, ident)
		case !prevObs.equal(obs):
			d.Modified = append(d.Modified, ident)
		}
	}

	for ident := range previous {
		if _, stillPresent := current[ident]; !stillPresent {
			d.Deleted = append(d.Deleted, ident)
		}
	}

	return d
}

func (s *Scanner) filterSuppressed(ctx context.Context, d Diff) Diff {
	return Diff{
		Created:  s.filterList(ctx, d.Created),
		Modified: s.filterList(ctx, d.Modified),
		Deleted:  s.filterList(ctx, d.Deleted),
	}
}

func (s *Scanner) filterList(ctx context.Context, idents []string) []string {
	out := make([]string, 0, len(idents))

	for _, ident := range idents {
		if s.suppressed.IsSuppressed(ident) {
			log(ctx).Debugf("suppressing locally-observed change for %q (remote write in flight)", ident)
			continue
		}

		out = append(out, ident)
	}

	return out
}

// Run polls on s.interval until ctx is cancelled, invoking onDiff with
// every non-empty tick result. Run blocks; EngineLoop runs it in its own
// goroutine and cancels ctx to join it during shutdown (spec §5).
func (s *Scanner) Run(ctx context.Context, onDiff func(Diff)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d := s.Tick(ctx); !d.Empty() {
				onDiff(d)
			}
		}
	}
}
