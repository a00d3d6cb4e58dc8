package applier_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dirshare/dirshare/applier"
	"github.com/dirshare/dirshare/fsadapter"
	"github.com/dirshare/dirshare/integrity"
	"github.com/dirshare/dirshare/reassembler"
	"github.com/dirshare/dirshare/scanner"
	"github.com/dirshare/dirshare/suppression"
	"github.com/dirshare/dirshare/transport"
)

func newApplier(t *testing.T) (*applier.Applier, *fsadapter.Adapter, *suppression.Set, string) {
	t.Helper()

	dir := t.TempDir()
	fs := fsadapter.New(dir)
	sup := suppression.New()
	sc := scanner.New(fs, sup, scanner.DefaultInterval)
	a := applier.New(fs, sup, reassembler.New(), sc)

	return a, fs, sup, dir
}

// P9: integrity gate. Bad CRC or size mismatch leaves the local file
// untouched and clears suppression.
func TestHandleContent_IntegrityGateCRCMismatch(t *testing.T) {
	a, fs, sup, _ := newApplier(t)
	ctx := context.Background()

	fc := transport.FileContent{
		Ident:    "f.txt",
		Bytes:    []byte("hello"),
		Size:     5,
		CRC32:    0xDEADBEEF, // wrong
		MtimeSec: 100,
	}

	a.HandleContent(ctx, fc)

	require.False(t, fs.ExistsRegular("f.txt"))
	require.False(t, sup.IsSuppressed("f.txt"))
}

func TestHandleContent_IntegrityGateSizeMismatch(t *testing.T) {
	a, fs, sup, _ := newApplier(t)
	ctx := context.Background()

	fc := transport.FileContent{
		Ident:    "f.txt",
		Bytes:    []byte("hello"),
		Size:     999,
		CRC32:    integrity.CRC32([]byte("hello")),
		MtimeSec: 100,
	}

	a.HandleContent(ctx, fc)

	require.False(t, fs.ExistsRegular("f.txt"))
	require.False(t, sup.IsSuppressed("f.txt"))
}

// P10/S2: remote newer wins.
func TestHandleContent_RemoteNewerWins(t *testing.T) {
	a, fs, sup, dir := newApplier(t)
	ctx := context.Background()

	path := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))
	require.NoError(t, fs.SetMtime("config.ini", 1_000_000, 0))

	fc := transport.FileContent{
		Ident:    "config.ini",
		Bytes:    []byte("v2-longer"),
		Size:     uint64(len("v2-longer")),
		CRC32:    integrity.CRC32([]byte("v2-longer")),
		MtimeSec: 1_000_010,
	}

	a.HandleContent(ctx, fc)

	got, err := fs.ReadAll("config.ini")
	require.NoError(t, err)
	require.Equal(t, "v2-longer", string(got))
	require.False(t, sup.IsSuppressed("config.ini"))
}

// P10/S3: local newer, remote ignored, suppression still cleared.
func TestHandleContent_LocalNewerRejected(t *testing.T) {
	a, fs, sup, dir := newApplier(t)
	ctx := context.Background()

	path := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))
	require.NoError(t, fs.SetMtime("config.ini", 1_000_020, 0))

	fc := transport.FileContent{
		Ident:    "config.ini",
		Bytes:    []byte("v2-should-not-apply"),
		Size:     uint64(len("v2-should-not-apply")),
		CRC32:    integrity.CRC32([]byte("v2-should-not-apply")),
		MtimeSec: 1_000_010,
	}

	a.HandleContent(ctx, fc)

	got, err := fs.ReadAll("config.ini")
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))
	require.False(t, sup.IsSuppressed("config.ini"))
}

// P11: suppression cleared on every exit path, including success.
func TestHandleContent_SuccessClearsSuppression(t *testing.T) {
	a, fs, sup, _ := newApplier(t)
	ctx := context.Background()

	fc := transport.FileContent{
		Ident:    "new.txt",
		Bytes:    []byte("payload"),
		Size:     uint64(len("payload")),
		CRC32:    integrity.CRC32([]byte("payload")),
		MtimeSec: 1,
	}

	a.HandleContent(ctx, fc)

	require.True(t, fs.ExistsRegular("new.txt"))
	require.False(t, sup.IsSuppressed("new.txt"))
}

func TestHandleContent_WriteFailureClearsSuppression(t *testing.T) {
	dir := t.TempDir()
	fs := fsadapter.New(dir)
	sup := suppression.New()
	sc := scanner.New(fs, sup, scanner.DefaultInterval)
	a := applier.New(fs, sup, reassembler.New(), sc)
	ctx := context.Background()

	// Create a directory where the applier will try to write a file,
	// forcing WriteAll to fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "blocked"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocked", "placeholder"), []byte("x"), 0o600))

	fc := transport.FileContent{
		Ident:    "blocked",
		Bytes:    []byte("payload"),
		Size:     uint64(len("payload")),
		CRC32:    integrity.CRC32([]byte("payload")),
		MtimeSec: 1,
	}

	a.HandleContent(ctx, fc)

	require.False(t, sup.IsSuppressed("blocked"))
}

func TestHandleEvent_CreateAlreadyPresentIgnored(t *testing.T) {
	a, _, sup, dir := newApplier(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o600))

	a.HandleEvent(ctx, transport.FileEvent{Ident: "a.txt", Op: transport.Create})

	require.False(t, sup.IsSuppressed("a.txt"))
}

// S5: delete with remote-newer removes the file; remote-older retains it.
func TestHandleEvent_DeleteRemoteNewerRemoves(t *testing.T) {
	a, fs, sup, dir := newApplier(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tmp.log"), []byte("x"), 0o600))
	require.NoError(t, fs.SetMtime("tmp.log", 2_000_000, 0))

	a.HandleEvent(ctx, transport.FileEvent{
		Ident: "tmp.log", Op: transport.Delete, EventSec: 2_000_005,
	})

	require.False(t, fs.ExistsRegular("tmp.log"))
	require.False(t, sup.IsSuppressed("tmp.log"))
	_ = dir
}

func TestHandleEvent_DeleteLocalNewerRetains(t *testing.T) {
	a, fs, _, dir := newApplier(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tmp.log"), []byte("x"), 0o600))
	require.NoError(t, fs.SetMtime("tmp.log", 2_000_010, 0))

	a.HandleEvent(ctx, transport.FileEvent{
		Ident: "tmp.log", Op: transport.Delete, EventSec: 2_000_005,
	})

	require.True(t, fs.ExistsRegular("tmp.log"))
}

func TestHandleChunk_FinalizesThroughSamePipeline(t *testing.T) {
	a, fs, sup, _ := newApplier(t)
	ctx := context.Background()

	data := make([]byte, transport.ChunkSize+10)
	for i := range data {
		data[i] = byte(i)
	}

	crc := integrity.CRC32(data)
	chunks := []transport.FileChunk{
		{
			Ident: "big.bin", ChunkID: 0, TotalChunks: 2,
			Bytes: data[:transport.ChunkSize], ChunkCRC32: integrity.CRC32(data[:transport.ChunkSize]),
			FileSize: uint64(len(data)), FileCRC32: crc, MtimeSec: 42,
		},
		{
			Ident: "big.bin", ChunkID: 1, TotalChunks: 2,
			Bytes: data[transport.ChunkSize:], ChunkCRC32: integrity.CRC32(data[transport.ChunkSize:]),
			FileSize: uint64(len(data)), FileCRC32: crc, MtimeSec: 42,
		},
	}

	for _, ch := range chunks {
		a.HandleChunk(ctx, ch)
	}

	got, err := fs.ReadAll("big.bin")
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.False(t, sup.IsSuppressed("big.bin"))
}

func TestHandleContent_InvalidIdentDropped(t *testing.T) {
	a, _, sup, _ := newApplier(t)
	ctx := context.Background()

	sup.Suppress("../escape")
	a.HandleContent(ctx, transport.FileContent{Ident: "../escape", Bytes: []byte("x"), Size: 1, CRC32: integrity.CRC32([]byte("x"))})

	require.False(t, sup.IsSuppressed("../escape"))
}
