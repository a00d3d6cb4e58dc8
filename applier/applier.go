// Package applier implements the InboundApplier (spec §4.G): the heart of
// the engine. It consumes inbound FileEvents, FileContents, and
// (via reassembler) completed FileChunks, resolves conflicts by
// last-write-wins timestamp comparison, and commits to the filesystem
// through fsadapter — all while guaranteeing the SuppressionSet entry for
// an ident is cleared on every exit path (spec §3/§4.G/P11).
package applier

import (
	"context"

	"github.com/dirshare/dirshare/fsadapter"
	"github.com/dirshare/dirshare/integrity"
	"github.com/dirshare/dirshare/internal/clockutil"
	"github.com/dirshare/dirshare/internal/logging"
	"github.com/dirshare/dirshare/reassembler"
	"github.com/dirshare/dirshare/suppression"
	"github.com/dirshare/dirshare/transport"
)

var log = logging.GetContextLoggerFunc("dirshare/applier")

// baselineAbsorber lets the applier tell the scanner that ident's on-disk
// state was just settled by an inbound write or delete, so the scanner's
// next tick sees it as already-known instead of diffing it as a fresh
// local change to republish. Suppression alone only blocks a republish if
// a scan tick happens to run while the ident is still suppressed and
// absorbs it into the scanner's baseline; in the ordinary case where the
// write completes between ticks, the baseline must be primed directly
// (spec §9: this is the condition the whole engine's loop-prevention
// invariant, spec §1/§4.D step 6/P12/S6, depends on).
type baselineAbsorber interface {
	AbsorbLocalWrite(ctx context.Context, ident string)
}

// Applier is InboundApplier. One Applier is shared by all inbound
// channel-handler goroutines (spec §5); its only cross-goroutine mutable
// state is the SuppressionSet and the scanner baseline reached through
// baseline, both of which already guard themselves.
type Applier struct {
	fs          *fsadapter.Adapter
	suppressed  *suppression.Set
	reassembler *reassembler.Reassembler
	baseline    baselineAbsorber
}

// New returns an Applier writing through fs, arming/clearing suppressed,
// fronting the Chunks channel with reasm, and priming baseline (the
// engine's scanner) with every inbound write or delete before suppression
// is lifted.
func New(fs *fsadapter.Adapter, suppressed *suppression.Set, reasm *reassembler.Reassembler, baseline baselineAbsorber) *Applier {
	return &Applier{fs: fs, suppressed: suppressed, reassembler: reasm, baseline: baseline}
}

// suppressionGuard is the "resume on every exit path" scoped-release
// pattern spec §9 calls for: it arms suppression on construction and
// releases it exactly once, however the caller returns. release is always
// deferred; dismiss is called explicitly once a write (or a no-write
// decision) has reached its final, settled outcome — the two converge on
// the same idempotent Resume call, but are named separately to mirror the
// narrative of each exit path in spec §4.G.
type suppressionGuard struct {
	set   *suppression.Set
	ident string
	done  bool
}

func armSuppression(set *suppression.Set, ident string) *suppressionGuard {
	set.Suppress(ident)
	return &suppressionGuard{set: set, ident: ident}
}

func (g *suppressionGuard) release() {
	if g.done {
		return
	}

	g.done = true
	g.set.Resume(g.ident)
}

func (g *suppressionGuard) dismiss() {
	g.release()
}

// HandleEvent processes one inbound FileEvent (spec §4.G).
func (a *Applier) HandleEvent(ctx context.Context, ev transport.FileEvent) {
	if !transport.ValidIdent(ev.Ident) {
		log(ctx).Errorf("dropping inbound event with invalid ident %q", ev.Ident)
		return
	}

	switch ev.Op {
	case transport.Create, transport.Modify:
		a.handleCreateOrModifyEvent(ctx, ev)
	case transport.Delete:
		a.handleDeleteEvent(ctx, ev)
	default:
		log(ctx).Errorf("dropping event with unknown op for %q", ev.Ident)
	}
}

func (a *Applier) handleCreateOrModifyEvent(ctx context.Context, ev transport.FileEvent) {
	if ev.Op == transport.Create && a.fs.ExistsRegular(ev.Ident) {
		log(ctx).Infof("ignoring CREATE for %q: already present locally", ev.Ident)
		return
	}

	// Arm suppression ahead of the payload's arrival. The payload may
	// already be in flight or may already have landed (Content-before-
	// Event is tolerated — in that case the Content handler itself armed
	// and already cleared suppression, and this call re-arms briefly
	// until the scanner's next tick observes the settled file and the
	// window closes on its own). We deliberately do not hold the guard
	// here: the payload handler owns the guard's lifetime end-to-end.
	a.suppressed.Suppress(ev.Ident)
}

// handleDeleteEvent applies last-write-wins DELETE semantics (spec §4.G,
// GLOSSARY "Last-write-wins"). See spec §9 Open Question 1: a MODIFY with
// an older timestamp that arrives after this DELETE has already been
// applied will still pass its own integrity/staleness gate against the
// now-absent file and recreate it — this is the specified, accepted
// behaviour, not a bug to work around here.
func (a *Applier) handleDeleteEvent(ctx context.Context, ev transport.FileEvent) {
	if !a.fs.ExistsRegular(ev.Ident) {
		return
	}

	localSec, localNsec, err := a.fs.GetMtime(ev.Ident)
	if err != nil {
		log(ctx).Errorf("delete %q: failed to stat local file: %v", ev.Ident, err)
		return
	}

	if !clockutil.After(ev.EventSec, ev.EventNsec, localSec, localNsec) {
		// Remote loses or ties; local file is retained.
		return
	}

	guard := armSuppression(a.suppressed, ev.Ident)
	defer guard.release()

	a.fs.Remove(ev.Ident)
	a.baseline.AbsorbLocalWrite(ctx, ev.Ident)
}

// HandleContent processes one inbound FileContent (spec §4.G steps 1-8).
func (a *Applier) HandleContent(ctx context.Context, fc transport.FileContent) {
	if !transport.ValidIdent(fc.Ident) {
		// Defensive: an earlier Suppress may have been armed by the
		// matching FileEvent. Resume unconditionally.
		a.suppressed.Resume(fc.Ident)
		log(ctx).Errorf("dropping inbound content with invalid ident %q", fc.Ident)

		return
	}

	guard := armSuppression(a.suppressed, fc.Ident)
	defer guard.release()

	a.applyPayload(ctx, fc.Ident, fc.Bytes, fc.Size, fc.CRC32, fc.MtimeSec, fc.MtimeNsec, guard)
}

// HandleChunk forwards ch to the reassembler and, once it yields a
// Complete, runs it through the same pipeline as FileContent (spec §4.G
// "On inbound FileChunk").
func (a *Applier) HandleChunk(ctx context.Context, ch transport.FileChunk) {
	if !transport.ValidIdent(ch.Ident) {
		a.suppressed.Resume(ch.Ident)
		log(ctx).Errorf("dropping inbound chunk with invalid ident %q", ch.Ident)

		return
	}

	complete, ok := a.reassembler.Feed(ctx, ch)
	if !ok {
		return
	}

	guard := armSuppression(a.suppressed, complete.Ident)
	defer guard.release()

	a.applyPayload(ctx, complete.Ident, complete.Bytes, complete.FileSize, complete.FileCRC32, complete.MtimeSec, complete.MtimeNsec, guard)
}

// applyPayload is steps 2-8 of spec §4.G's FileContent handling, shared
// verbatim by the small-file and reassembled-chunk paths.
func (a *Applier) applyPayload(
	ctx context.Context,
	ident string,
	data []byte,
	size uint64,
	crc uint32,
	mtimeSec uint64,
	mtimeNsec uint32,
	guard *suppressionGuard,
) {
	if a.fs.ExistsRegular(ident) {
		localSec, localNsec, err := a.fs.GetMtime(ident)
		if err == nil && !clockutil.After(mtimeSec, mtimeNsec, localSec, localNsec) {
			log(ctx).Infof("rejecting payload for %q: local is newer or equal to remote", ident)
			guard.dismiss()

			return
		}
	}

	if size != uint64(len(data)) {
		log(ctx).Errorf("rejecting payload for %q: size mismatch (declared %d, got %d)", ident, size, len(data))
		guard.dismiss()

		return
	}

	if integrity.CRC32(data) != crc {
		log(ctx).Errorf("rejecting payload for %q: CRC32 mismatch", ident)
		guard.dismiss()

		return
	}

	if err := a.fs.WriteAll(ident, data); err != nil {
		log(ctx).Errorf("failed to write %q: %v", ident, err)
		guard.dismiss()

		return
	}

	if err := a.fs.SetMtime(ident, mtimeSec, mtimeNsec); err != nil {
		log(ctx).Warnf("failed to set mtime on %q: %v", ident, err)
	}

	// Prime the scanner's baseline before lifting suppression: otherwise
	// the next tick sees this settled write as a brand-new local change
	// and republishes it (spec §9; see baselineAbsorber).
	a.baseline.AbsorbLocalWrite(ctx, ident)
	guard.dismiss()
}
