// Command dirshare watches a directory and keeps it synchronised with the
// same directory on other participants over a shared transport.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dirshare/dirshare/engine"
	"github.com/dirshare/dirshare/internal/logging"
	"github.com/dirshare/dirshare/internal/memtransport"
	"github.com/dirshare/dirshare/internal/singleinstance"
)

// nolint:gochecknoglobals
var (
	errorColor = color.New(color.FgHiRed)
	noteColor  = color.New(color.FgHiCyan)

	stdout = colorable.NewColorableStdout()
	stderr = colorable.NewColorableStderr()
)

func main() {
	app := kingpin.New("dirshare", "Peer-to-peer directory synchronisation.")

	watchDir := app.Arg("dir", "Shared directory to watch and synchronise").Required().String()
	participantID := app.Flag("participant-id", "Stable identifier for this participant (random UUID if unset)").String()
	scanInterval := app.Flag("scan-interval", "Polling interval for local change detection").Default("2s").Duration()
	verbose := app.Flag("verbose", "Enable debug logging").Bool()
	noLock := app.Flag("no-single-instance-lock", "Skip the advisory single-instance lock on the watched directory").Bool()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := run(runOptions{
		dir:           *watchDir,
		participantID: *participantID,
		scanInterval:  *scanInterval,
		verbose:       *verbose,
		noLock:        *noLock,
	}); err != nil {
		fmt.Fprintln(stderr, errorColor.Sprintf("dirshare: %v", err)) //nolint:errcheck
		os.Exit(1)
	}
}

type runOptions struct {
	dir           string
	participantID string
	scanInterval  time.Duration
	verbose       bool
	noLock        bool
}

func run(opts runOptions) error {
	logger, err := newLogger(opts.verbose)
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}

	defer logger.Sync() //nolint:errcheck

	logging.SetDefault(logger)

	if !opts.noLock {
		lock, err := singleinstance.Acquire(opts.dir)
		if err != nil {
			if errors.Is(err, singleinstance.ErrAlreadyRunning) {
				return errors.Errorf("another dirshare process is already watching %q", opts.dir)
			}

			return errors.Wrap(err, "failed to acquire single-instance lock")
		}

		defer lock.Release() //nolint:errcheck
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctx = logging.WithLogger(ctx, logger)

	// TODO: wire a real pub/sub transport binding once one is chosen; the
	// in-memory bus only synchronises engines within this one process.
	bus := memtransport.New()
	defer bus.Close() //nolint:errcheck

	e := engine.New(engine.Config{
		Dir:           opts.dir,
		ScanInterval:  opts.scanInterval,
		ParticipantID: opts.participantID,
	}, bus)

	fmt.Fprintln(stdout, noteColor.Sprintf("dirshare: watching %q as participant %q", opts.dir, e.ParticipantID())) //nolint:errcheck

	return e.Run(ctx)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = nil
	cfg.DisableStacktrace = true

	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return cfg.Build()
}
