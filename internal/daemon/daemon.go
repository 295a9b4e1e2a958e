// Package daemon implements process lifecycle management for the stage
// binaries: install OS signal handling, cancel the dispatch loop's context
// on SIGTERM/SIGINT, and run a final synchronous shutdown hook before the
// process exits. Grounded on the teacher's internal/daemon/daemon.go
// signal-channel-plus-context-cancellation shape, trimmed to this module's
// single-runner-per-process model (no UDS/Kafka command channel).
package daemon

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/tevino/abool"
)

// Runner is one stage's dispatch loop: blocks until ctx is cancelled or an
// unrecoverable error occurs.
type Runner interface {
	Run(ctx context.Context) error
}

// Daemon drives one Runner to completion, triggering an orderly shutdown
// hook when an OS signal arrives before the runner exits on its own.
type Daemon struct {
	runner       Runner
	onShutdown   func()
	shuttingDown *abool.AtomicBool
}

// New constructs a Daemon around runner. onShutdown is called once, after
// the shutdown signal fires and before Run returns, to let the caller flush
// any pending state (e.g. runengine.Engine.Flush(0)); it may be nil.
func New(runner Runner, onShutdown func()) *Daemon {
	return &Daemon{runner: runner, onShutdown: onShutdown, shuttingDown: abool.New()}
}

// Run installs SIGTERM/SIGINT handling, starts the runner, and blocks until
// it exits. If a signal arrives first, the runner's context is cancelled,
// the shutdown hook runs, and Run waits for the runner to actually return
// before reporting completion.
func (d *Daemon) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.runner.Run(ctx)
	}()

	select {
	case err := <-errCh:
		return err

	case <-ctx.Done():
		d.shuttingDown.Set()
		slog.Info("shutdown signal received, stopping")
		if d.onShutdown != nil {
			d.onShutdown()
		}
		if err := <-errCh; err != nil && err != context.Canceled {
			return err
		}
		slog.Info("stopped gracefully")
		return nil
	}
}

// ShuttingDown reports whether a shutdown signal has been received.
func (d *Daemon) ShuttingDown() bool {
	return d.shuttingDown.IsSet()
}
