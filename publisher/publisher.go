// Package publisher implements the OutboundPublisher (spec §4.E): given a
// locally detected change, it emits the right sequence of FileEvent and
// payload messages onto the transport bus.
package publisher

import (
	"context"
	"math"
	"time"

	"github.com/dirshare/dirshare/fsadapter"
	"github.com/dirshare/dirshare/integrity"
	"github.com/dirshare/dirshare/internal/clockutil"
	"github.com/dirshare/dirshare/internal/logging"
	"github.com/dirshare/dirshare/transport"
)

var log = logging.GetContextLoggerFunc("dirshare/publisher")

// ChunkThreshold and ChunkSize re-export the spec's CHUNK_THRESHOLD/
// CHUNK_SIZE constants (defined once in package transport, shared with
// reassembler) for callers that only import publisher.
const (
	ChunkThreshold = transport.ChunkThreshold
	ChunkSize      = transport.ChunkSize
	// DefaultChunkPacing is the inter-chunk pacing delay target (spec
	// §4.E: "target ~10ms"; a tuning knob, not a correctness property).
	DefaultChunkPacing = 10 * time.Millisecond
)

// Publisher emits FileEvent/FileContent/FileChunk sequences for locally
// observed changes.
type Publisher struct {
	fs          *fsadapter.Adapter
	bus         transport.Bus
	clock       clockutil.Clock
	chunkPacing time.Duration
}

// New returns a Publisher over fs/bus, stamping events with clock and
// pacing chunk sends by DefaultChunkPacing.
func New(fs *fsadapter.Adapter, bus transport.Bus, clock clockutil.Clock) *Publisher {
	return &Publisher{fs: fs, bus: bus, clock: clock, chunkPacing: DefaultChunkPacing}
}

// WithChunkPacing overrides the inter-chunk delay (used by tests to avoid
// slowing down large-file fixtures).
func (p *Publisher) WithChunkPacing(d time.Duration) *Publisher {
	p.chunkPacing = d
	return p
}

// EmitCreate publishes a CREATE for ident, reading and checksumming it
// from disk exactly once.
func (p *Publisher) EmitCreate(ctx context.Context, ident string) {
	p.emitUpsert(ctx, ident, transport.Create)
}

// EmitModify publishes a MODIFY for ident, reading and checksumming it
// from disk exactly once.
func (p *Publisher) EmitModify(ctx context.Context, ident string) {
	p.emitUpsert(ctx, ident, transport.Modify)
}

// EmitDelete publishes a DELETE for ident: a bare FileEvent, no payload.
func (p *Publisher) EmitDelete(ctx context.Context, ident string) {
	sec, nsec := p.clock.Now()

	ev := transport.FileEvent{
		Ident:     ident,
		Op:        transport.Delete,
		EventSec:  sec,
		EventNsec: nsec,
	}

	if err := p.bus.PublishEvent(ctx, ev); err != nil {
		log(ctx).Errorf("publish DELETE event for %q failed: %v", ident, err)
	}
}

func (p *Publisher) emitUpsert(ctx context.Context, ident string, op transport.Op) {
	data, err := p.fs.ReadAll(ident)
	if err != nil {
		// Most commonly: the file was deleted again before the scanner's
		// diff could be published. Non-fatal; the next tick will settle
		// the ident one way or the other.
		log(ctx).Errorf("publish %v for %q abandoned: read failed: %v", op, ident, err)
		return
	}

	mtimeSec, mtimeNsec, err := p.fs.GetMtime(ident)
	if err != nil {
		log(ctx).Errorf("publish %v for %q abandoned: stat failed: %v", op, ident, err)
		return
	}

	crc := integrity.CRC32(data)
	size := uint64(len(data))

	eventSec, eventNsec := p.clock.Now()

	ev := transport.FileEvent{
		Ident:     ident,
		Op:        op,
		EventSec:  eventSec,
		EventNsec: eventNsec,
		Metadata: transport.FileMetadata{
			Ident:     ident,
			Size:      size,
			MtimeSec:  mtimeSec,
			MtimeNsec: mtimeNsec,
			CRC32:     crc,
		},
	}

	if err := p.bus.PublishEvent(ctx, ev); err != nil {
		log(ctx).Errorf("publish %v event for %q failed: %v", op, ident, err)
		return
	}

	if size < ChunkThreshold {
		p.publishContent(ctx, ident, data, crc, mtimeSec, mtimeNsec)
		return
	}

	p.publishChunks(ctx, ident, data, crc, mtimeSec, mtimeNsec)
}

func (p *Publisher) publishContent(ctx context.Context, ident string, data []byte, crc uint32, mtimeSec uint64, mtimeNsec uint32) {
	fc := transport.FileContent{
		Ident:     ident,
		Bytes:     data,
		Size:      uint64(len(data)),
		CRC32:     crc,
		MtimeSec:  mtimeSec,
		MtimeNsec: mtimeNsec,
	}

	if err := p.bus.PublishContent(ctx, fc); err != nil {
		log(ctx).Errorf("publish content for %q failed: %v", ident, err)
	}
}

// publishChunks reads the CRC once (already computed over `data` by the
// caller) and copies it into every chunk, so file_crc32 is guaranteed to
// equal CRC32(concat(chunks)) without a second pass over the file (spec
// §4.E: "the publisher never re-reads the file after the CRC is
// computed").
func (p *Publisher) publishChunks(ctx context.Context, ident string, data []byte, fileCRC uint32, mtimeSec uint64, mtimeNsec uint32) {
	fileSize := uint64(len(data))
	total := totalChunks(fileSize)

	for chunkID := uint32(0); chunkID < total; chunkID++ {
		start := uint64(chunkID) * ChunkSize
		end := start + ChunkSize

		if end > fileSize {
			end = fileSize
		}

		body := data[start:end]

		ch := transport.FileChunk{
			Ident:       ident,
			ChunkID:     chunkID,
			TotalChunks: total,
			Bytes:       body,
			ChunkCRC32:  integrity.CRC32(body),
			FileSize:    fileSize,
			FileCRC32:   fileCRC,
			MtimeSec:    mtimeSec,
			MtimeNsec:   mtimeNsec,
		}

		if err := p.bus.PublishChunk(ctx, ch); err != nil {
			log(ctx).Errorf("publish chunk %d/%d for %q failed, abandoning remaining chunks: %v", chunkID, total, ident, err)
			return
		}

		if chunkID+1 < total && p.chunkPacing > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.chunkPacing):
			}
		}
	}
}

func totalChunks(fileSize uint64) uint32 {
	return uint32(math.Ceil(float64(fileSize) / float64(ChunkSize))) //nolint:gosec
}
