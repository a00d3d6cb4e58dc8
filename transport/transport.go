package transport

import "context"

// Bus is the transport abstraction the engine requires (spec §6): four
// typed channels, each with its own delivery profile. Concrete
// implementations (a real DDS binding, or internal/memtransport for tests)
// provide topic creation, QoS, and discovery; the engine only ever talks
// to this interface.
//
// Delivery guarantees assumed by the engine, per channel (spec §6 table):
//
//   - Events:    reliable, persistent-for-late-joiners, retains last 100,
//     per-ident FIFO.
//   - Content:   reliable, volatile, retains last 1 per ident,
//     per-ident FIFO, single exclusive writer per ident.
//   - Chunks:    reliable, volatile, retains all, O(1000) outstanding
//     samples per ident, keyed by (ident, chunk_id), single exclusive
//     writer per ident.
//   - Snapshots: reliable, persistent-for-late-joiners, retains last 1
//     per participant_id.
//
// The engine does not assume ordering *across* channels: a Content or
// Chunk sample for an ident may be delivered before or after the FileEvent
// that announced it (spec §5).
type Bus interface {
	PublishEvent(ctx context.Context, ev FileEvent) error
	PublishContent(ctx context.Context, fc FileContent) error
	PublishChunk(ctx context.Context, ch FileChunk) error
	PublishSnapshot(ctx context.Context, snap DirectorySnapshot) error

	// SubscribeEvents registers handler to be invoked for every inbound
	// FileEvent, including the caller's own publications (loop prevention
	// is the engine's responsibility, not the transport's). Returns an
	// unsubscribe function.
	SubscribeEvents(handler func(context.Context, FileEvent)) (unsubscribe func())
	SubscribeContent(handler func(context.Context, FileContent)) (unsubscribe func())
	SubscribeChunks(handler func(context.Context, FileChunk)) (unsubscribe func())
	SubscribeSnapshots(handler func(context.Context, DirectorySnapshot)) (unsubscribe func())

	// Close tears down the transport. Publishes after Close return an
	// error; the engine logs such errors, does not retry, and keeps
	// running until its context is cancelled.
	Close() error
}
