// Package reconciler implements the SnapshotReconciler (spec §4.H): on
// receiving a remote DirectorySnapshot, it decides which files to
// pull/push. Per spec, this is intentionally passive in the push model —
// the remote also pushes content on its own snapshot publication, so the
// reconciler here only logs missing files for visibility. It is kept as a
// named, directly-testable unit because a pull-based request/response
// variant is a planned evolution (spec §4.H, §9 Open Question 2).
package reconciler

import (
	"context"

	"github.com/dirshare/dirshare/fsadapter"
	"github.com/dirshare/dirshare/integrity"
	"github.com/dirshare/dirshare/internal/clockutil"
	"github.com/dirshare/dirshare/internal/logging"
	"github.com/dirshare/dirshare/transport"
)

var log = logging.GetContextLoggerFunc("dirshare/reconciler")

// Reconciler observes remote DirectorySnapshots against the local
// filesystem.
type Reconciler struct {
	fs            *fsadapter.Adapter
	participantID string
}

// New returns a Reconciler for the participant identified by
// participantID, so it can recognise and ignore its own snapshots.
func New(fs *fsadapter.Adapter, participantID string) *Reconciler {
	return &Reconciler{fs: fs, participantID: participantID}
}

// HandleSnapshot implements spec §4.H's two steps: ignore snapshots
// carrying our own participant_id, then for every remote file not present
// locally, log it for visibility without taking any pull action.
func (r *Reconciler) HandleSnapshot(ctx context.Context, snap transport.DirectorySnapshot) {
	if snap.ParticipantID == r.participantID {
		return
	}

	for _, fm := range snap.Files {
		if !transport.ValidIdent(fm.Ident) {
			log(ctx).Errorf("ignoring snapshot entry with invalid ident %q from %s", fm.Ident, snap.ParticipantID)
			continue
		}

		if !r.fs.ExistsRegular(fm.Ident) {
			log(ctx).Infof("missing %q from peer %s snapshot (%d bytes); awaiting that peer's content/chunk push", fm.Ident, snap.ParticipantID, fm.Size)
		}
	}
}

// BuildSnapshot assembles the full local DirectorySnapshot this
// participant publishes at startup and whenever asked (spec §4.H/§4.I).
func BuildSnapshot(ctx context.Context, fs *fsadapter.Adapter, participantID string, clock clockutil.Clock) (transport.DirectorySnapshot, error) {
	idents, err := fs.ListRegularFiles(ctx)
	if err != nil {
		return transport.DirectorySnapshot{}, err
	}

	files := make([]transport.FileMetadata, 0, len(idents))

	for _, ident := range idents {
		size, err := fs.GetSize(ident)
		if err != nil {
			continue
		}

		mtimeSec, mtimeNsec, err := fs.GetMtime(ident)
		if err != nil {
			continue
		}

		data, err := fs.ReadAll(ident)
		if err != nil {
			continue
		}

		files = append(files, transport.FileMetadata{
			Ident:     ident,
			Size:      size,
			MtimeSec:  mtimeSec,
			MtimeNsec: mtimeNsec,
			CRC32:     integrity.CRC32(data),
		})
	}

	sec, nsec := clock.Now()

	return transport.DirectorySnapshot{
		ParticipantID: participantID,
		Files:         files,
		SnapshotSec:   sec,
		SnapshotNsec:  nsec,
		FileCount:     len(files),
	}, nil
}
