package reconciler_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dirshare/dirshare/fsadapter"
	"github.com/dirshare/dirshare/internal/clockutil"
	"github.com/dirshare/dirshare/reconciler"
	"github.com/dirshare/dirshare/transport"
)

func TestHandleSnapshot_IgnoresOwnParticipantID(t *testing.T) {
	dir := t.TempDir()
	fs := fsadapter.New(dir)
	r := reconciler.New(fs, "self")

	// Should not panic or do anything observable; this just exercises the
	// early-return path.
	r.HandleSnapshot(context.Background(), transport.DirectorySnapshot{
		ParticipantID: "self",
		Files:         []transport.FileMetadata{{Ident: "x.txt"}},
	})
}

func TestBuildSnapshot(t *testing.T) {
	dir := t.TempDir()
	fs := fsadapter.New(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o600))

	clock := clockutil.NewFake(1_700_000_000, 0)

	snap, err := reconciler.BuildSnapshot(context.Background(), fs, "p1", clock)
	require.NoError(t, err)
	require.Equal(t, "p1", snap.ParticipantID)
	require.Equal(t, 1, snap.FileCount)
	require.Equal(t, "a.txt", snap.Files[0].Ident)
	require.Equal(t, uint64(5), snap.Files[0].Size)
}

func TestHandleSnapshot_FromRemotePeer(t *testing.T) {
	dir := t.TempDir()
	fs := fsadapter.New(dir)
	r := reconciler.New(fs, "self")

	// Remote snapshot names a file we don't have; the reconciler is
	// passive and must not attempt to create it.
	r.HandleSnapshot(context.Background(), transport.DirectorySnapshot{
		ParticipantID: "peer",
		Files:         []transport.FileMetadata{{Ident: "missing.txt", Size: 10}},
	})

	require.False(t, fs.ExistsRegular("missing.txt"))
}
