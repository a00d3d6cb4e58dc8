// Package reassembler implements the ChunkReassembler (spec §4.F):
// buffers inbound FileChunks per ident, verifies per-chunk and whole-file
// integrity, and produces a complete byte blob once every chunk has
// arrived. Out-of-order arrival and duplicate chunks are both tolerated.
package reassembler

import (
	"context"

	"github.com/willf/bitset"

	"github.com/dirshare/dirshare/integrity"
	"github.com/dirshare/dirshare/internal/logging"
	"github.com/dirshare/dirshare/transport"
)

var log = logging.GetContextLoggerFunc("dirshare/reassembler")

// Complete is a fully reassembled file, ready for the applier's normal
// FileContent pipeline.
type Complete struct {
	Ident     string
	Bytes     []byte
	FileSize  uint64
	FileCRC32 uint32
	MtimeSec  uint64
	MtimeNsec uint32
}

// state is ReassemblyState (spec §3): exclusively owned by the
// Reassembler, created on the first chunk for an ident and destroyed on
// finalisation or a metadata-consistency rejection.
type state struct {
	totalChunks uint32
	fileSize    uint64
	fileCRC32   uint32
	mtimeSec    uint64
	mtimeNsec   uint32
	buf         []byte
	received    *bitset.BitSet
}

func newState(ch transport.FileChunk) *state {
	return &state{
		totalChunks: ch.TotalChunks,
		fileSize:    ch.FileSize,
		fileCRC32:   ch.FileCRC32,
		mtimeSec:    ch.MtimeSec,
		mtimeNsec:   ch.MtimeNsec,
		buf:         make([]byte, ch.FileSize),
		received:    bitset.New(uint(ch.TotalChunks)),
	}
}

func (s *state) matchesMetadata(ch transport.FileChunk) bool {
	return s.totalChunks == ch.TotalChunks &&
		s.fileSize == ch.FileSize &&
		s.fileCRC32 == ch.FileCRC32
}

func (s *state) complete() bool {
	return s.received.Count() == uint(s.totalChunks)
}

// Reassembler is exclusively owned by whichever goroutine feeds it inbound
// chunks (spec §5); it performs no locking of its own.
type Reassembler struct {
	states map[string]*state
}

// New returns an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{states: map[string]*state{}}
}

// Feed processes one inbound FileChunk (spec §4.F steps 1-5) and returns a
// Complete once every chunk for its ident has arrived and passed the
// whole-file CRC check, or ok=false if the chunk was accepted but the
// file isn't finished yet (or the chunk was dropped).
func (r *Reassembler) Feed(ctx context.Context, ch transport.FileChunk) (Complete, bool) {
	if integrity.CRC32(ch.Bytes) != ch.ChunkCRC32 {
		log(ctx).Errorf("dropping chunk %d for %q: chunk CRC mismatch", ch.ChunkID, ch.Ident)
		return Complete{}, false
	}

	if ch.ChunkID >= ch.TotalChunks {
		log(ctx).Errorf("dropping chunk %d for %q: chunk_id >= total_chunks (%d)", ch.ChunkID, ch.Ident, ch.TotalChunks)
		return Complete{}, false
	}

	s, ok := r.states[ch.Ident]
	if !ok {
		s = newState(ch)
		r.states[ch.Ident] = s
	} else if !s.matchesMetadata(ch) {
		// The remote restarted a transfer with different content: discard
		// the stale partial buffer and start over from this chunk (spec
		// §4.F step 2).
		log(ctx).Infof("restarting reassembly for %q: chunk metadata changed mid-transfer", ch.Ident)
		s = newState(ch)
		r.states[ch.Ident] = s
	}

	offset := uint64(ch.ChunkID) * transport.ChunkSize
	if offset+uint64(len(ch.Bytes)) > s.fileSize {
		log(ctx).Errorf("dropping chunk %d for %q: offset+len exceeds file_size", ch.ChunkID, ch.Ident)
		return Complete{}, false
	}

	copy(s.buf[offset:], ch.Bytes)
	s.received.Set(uint(ch.ChunkID))

	if !s.complete() {
		return Complete{}, false
	}

	delete(r.states, ch.Ident)

	if integrity.CRC32(s.buf) != s.fileCRC32 {
		log(ctx).Errorf("discarding reassembled %q: whole-file CRC mismatch", ch.Ident)
		return Complete{}, false
	}

	return Complete{
		Ident:     ch.Ident,
		Bytes:     s.buf,
		FileSize:  s.fileSize,
		FileCRC32: s.fileCRC32,
		MtimeSec:  s.mtimeSec,
		MtimeNsec: s.mtimeNsec,
	}, true
}
