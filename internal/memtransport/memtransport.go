// Package memtransport is an in-memory transport.Bus used by unit tests
// and as the placeholder bus in cmd/dirshare. It delivers
// every publish synchronously, in call order, to every current
// subscriber — which satisfies the per-ident FIFO guarantee spec §6
// requires of a real transport, but provides none of a real bus's
// network behaviour (retransmission, deadlines, discovery). It is
// modeled on the teacher's internal/blobtesting in-memory storage fakes:
// a minimal, inspectable stand-in for an external system the unit under
// test does not otherwise need to be real.
package memtransport

import (
	"context"
	"errors"
	"sync"

	"github.com/dirshare/dirshare/transport"
)

var errClosed = errors.New("memtransport: bus closed")

// Bus is an in-memory transport.Bus.
type Bus struct {
	mu     sync.Mutex
	closed bool

	eventSubs    []func(context.Context, transport.FileEvent)
	contentSubs  []func(context.Context, transport.FileContent)
	chunkSubs    []func(context.Context, transport.FileChunk)
	snapshotSubs []func(context.Context, transport.DirectorySnapshot)

	// Published* record every successfully published message, in order,
	// for test assertions (e.g. P12's "B publishes zero FileEvent
	// messages" checks).
	PublishedEvents    []transport.FileEvent
	PublishedContent   []transport.FileContent
	PublishedChunks    []transport.FileChunk
	PublishedSnapshots []transport.DirectorySnapshot
}

// New returns an empty, ready-to-use Bus.
func New() *Bus {
	return &Bus{}
}

// PublishEvent implements transport.Bus.
func (b *Bus) PublishEvent(ctx context.Context, ev transport.FileEvent) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errClosed
	}

	b.PublishedEvents = append(b.PublishedEvents, ev)
	subs := append([]func(context.Context, transport.FileEvent){}, b.eventSubs...)
	b.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub(ctx, ev)
		}
	}

	return nil
}

// PublishContent implements transport.Bus.
func (b *Bus) PublishContent(ctx context.Context, fc transport.FileContent) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errClosed
	}

	b.PublishedContent = append(b.PublishedContent, fc)
	subs := append([]func(context.Context, transport.FileContent){}, b.contentSubs...)
	b.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub(ctx, fc)
		}
	}

	return nil
}

// PublishChunk implements transport.Bus.
func (b *Bus) PublishChunk(ctx context.Context, ch transport.FileChunk) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errClosed
	}

	b.PublishedChunks = append(b.PublishedChunks, ch)
	subs := append([]func(context.Context, transport.FileChunk){}, b.chunkSubs...)
	b.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub(ctx, ch)
		}
	}

	return nil
}

// PublishSnapshot implements transport.Bus.
func (b *Bus) PublishSnapshot(ctx context.Context, snap transport.DirectorySnapshot) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errClosed
	}

	b.PublishedSnapshots = append(b.PublishedSnapshots, snap)
	subs := append([]func(context.Context, transport.DirectorySnapshot){}, b.snapshotSubs...)
	b.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub(ctx, snap)
		}
	}

	return nil
}

// SubscribeEvents implements transport.Bus.
func (b *Bus) SubscribeEvents(handler func(context.Context, transport.FileEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.eventSubs = append(b.eventSubs, handler)
	idx := len(b.eventSubs) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.eventSubs[idx] = nil
	}
}

// SubscribeContent implements transport.Bus.
func (b *Bus) SubscribeContent(handler func(context.Context, transport.FileContent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.contentSubs = append(b.contentSubs, handler)
	idx := len(b.contentSubs) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.contentSubs[idx] = nil
	}
}

// SubscribeChunks implements transport.Bus.
func (b *Bus) SubscribeChunks(handler func(context.Context, transport.FileChunk)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunkSubs = append(b.chunkSubs, handler)
	idx := len(b.chunkSubs) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.chunkSubs[idx] = nil
	}
}

// SubscribeSnapshots implements transport.Bus.
func (b *Bus) SubscribeSnapshots(handler func(context.Context, transport.DirectorySnapshot)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.snapshotSubs = append(b.snapshotSubs, handler)
	idx := len(b.snapshotSubs) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.snapshotSubs[idx] = nil
	}
}

// Close implements transport.Bus.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	return nil
}
