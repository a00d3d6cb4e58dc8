// Package engine implements the EngineLoop (spec §4.I): it owns the
// component instances, the transport handles, the SuppressionSet, and the
// scan-tick timer, wiring them into a single running participant.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dirshare/dirshare/applier"
	"github.com/dirshare/dirshare/fsadapter"
	"github.com/dirshare/dirshare/internal/clockutil"
	"github.com/dirshare/dirshare/internal/logging"
	"github.com/dirshare/dirshare/publisher"
	"github.com/dirshare/dirshare/reassembler"
	"github.com/dirshare/dirshare/reconciler"
	"github.com/dirshare/dirshare/scanner"
	"github.com/dirshare/dirshare/suppression"
	"github.com/dirshare/dirshare/transport"
)

var log = logging.GetContextLoggerFunc("dirshare/engine")

// Config configures one participant's EngineLoop.
type Config struct {
	// Dir is the shared directory this participant watches.
	Dir string
	// ScanInterval is T_scan; defaults to scanner.DefaultInterval if zero.
	ScanInterval time.Duration
	// ParticipantID uniquely identifies this participant's
	// DirectorySnapshots. A random UUID is generated if empty.
	ParticipantID string
	// Clock supplies timestamps; defaults to the system clock if nil.
	Clock clockutil.Clock
}

// Engine wires the scanner tick, publisher, applier, and transport
// callbacks into a single running participant (spec §4.I).
type Engine struct {
	cfg Config
	bus transport.Bus

	fs          *fsadapter.Adapter
	suppressed  *suppression.Set
	scanner     *scanner.Scanner
	publisher   *publisher.Publisher
	reassembler *reassembler.Reassembler
	applier     *applier.Applier
	reconciler  *reconciler.Reconciler

	unsubscribe []func()
}

// New constructs an Engine from cfg and bus. It does not start anything;
// call Run to begin operation.
func New(cfg Config, bus transport.Bus) *Engine {
	if cfg.ScanInterval == 0 {
		cfg.ScanInterval = scanner.DefaultInterval
	}

	if cfg.ParticipantID == "" {
		cfg.ParticipantID = uuid.NewString()
	}

	if cfg.Clock == nil {
		cfg.Clock = clockutil.System{}
	}

	fs := fsadapter.New(cfg.Dir)
	suppressed := suppression.New()
	reasm := reassembler.New()
	sc := scanner.New(fs, suppressed, cfg.ScanInterval)

	return &Engine{
		cfg:         cfg,
		bus:         bus,
		fs:          fs,
		suppressed:  suppressed,
		scanner:     sc,
		publisher:   publisher.New(fs, bus, cfg.Clock),
		reassembler: reasm,
		applier:     applier.New(fs, suppressed, reasm, sc),
		reconciler:  reconciler.New(fs, cfg.ParticipantID),
	}
}

// ParticipantID returns this engine's participant_id.
func (e *Engine) ParticipantID() string {
	return e.cfg.ParticipantID
}

// Run starts the engine and blocks until ctx is cancelled. Startup
// publishes a DirectorySnapshot and republishes all local content, then
// the periodic scan tick and inbound callbacks run until shutdown.
// Shutdown joins the scanner goroutine and unsubscribes from the bus; it
// does not wait for inbound callbacks already running and does not close
// the bus. Publish failures are logged by the publisher and do not end
// Run, so Run returns nil.
func (e *Engine) Run(ctx context.Context) error {
	e.subscribe(ctx)
	defer e.unsubscribeAll()

	// Seed ScannerState from the current directory listing before the
	// startup republish and the scan loop start, so every pre-existing
	// local file is reported once (by the republish below), not twice
	// (republish plus a spurious CREATE on the first Tick).
	e.scanner.Seed(ctx)

	if err := e.publishStartupSnapshot(ctx); err != nil {
		log(ctx).Errorf("startup snapshot publish failed: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	var wg sync.WaitGroup

	wg.Add(1)

	g.Go(func() error {
		defer wg.Done()

		e.scanner.Run(gctx, func(d scanner.Diff) {
			e.publishDiff(gctx, d)
		})

		return nil
	})

	<-gctx.Done()

	// Join the scanner goroutine after its current tick completes before
	// tearing down (spec §5 cancellation/timeouts).
	wg.Wait()

	return g.Wait() //nolint:wrapcheck
}

func (e *Engine) publishDiff(ctx context.Context, d scanner.Diff) {
	for _, ident := range d.Created {
		e.publisher.EmitCreate(ctx, ident)
	}

	for _, ident := range d.Modified {
		e.publisher.EmitModify(ctx, ident)
	}

	for _, ident := range d.Deleted {
		e.publisher.EmitDelete(ctx, ident)
	}
}

func (e *Engine) publishStartupSnapshot(ctx context.Context) error {
	snap, err := reconciler.BuildSnapshot(ctx, e.fs, e.cfg.ParticipantID, e.cfg.Clock)
	if err != nil {
		return err
	}

	if err := e.bus.PublishSnapshot(ctx, snap); err != nil {
		return err
	}

	// Republish every local file's content/chunks so late joiners
	// converge without a pull protocol (spec §4.H/§4.I). emitUpsert's
	// own threshold check picks content vs. chunks per file.
	for _, fm := range snap.Files {
		e.publisher.EmitCreate(ctx, fm.Ident)
	}

	return nil
}

func (e *Engine) subscribe(_ context.Context) {
	e.unsubscribe = append(e.unsubscribe,
		e.bus.SubscribeEvents(func(cbCtx context.Context, ev transport.FileEvent) {
			e.applier.HandleEvent(cbCtx, ev)
		}),
		e.bus.SubscribeContent(func(cbCtx context.Context, fc transport.FileContent) {
			e.applier.HandleContent(cbCtx, fc)
		}),
		e.bus.SubscribeChunks(func(cbCtx context.Context, ch transport.FileChunk) {
			e.applier.HandleChunk(cbCtx, ch)
		}),
		e.bus.SubscribeSnapshots(func(cbCtx context.Context, snap transport.DirectorySnapshot) {
			e.reconciler.HandleSnapshot(cbCtx, snap)
		}),
	)
}

func (e *Engine) unsubscribeAll() {
	for _, unsub := range e.unsubscribe {
		unsub()
	}
}
