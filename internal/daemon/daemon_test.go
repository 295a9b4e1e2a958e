package daemon

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcRunner func(ctx context.Context) error

func (f funcRunner) Run(ctx context.Context) error { return f(ctx) }

func TestRunReturnsRunnerError(t *testing.T) {
	want := errors.New("boom")
	d := New(funcRunner(func(ctx context.Context) error { return want }), nil)

	err := d.Run()
	assert.Equal(t, want, err)
	assert.False(t, d.ShuttingDown())
}

func TestRunStopsOnSignal(t *testing.T) {
	shutdownCalled := make(chan struct{})
	runner := funcRunner(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	d := New(runner, func() { close(shutdownCalled) })

	go func() {
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
	}()

	err := d.Run()
	assert.NoError(t, err)
	assert.True(t, d.ShuttingDown())

	select {
	case <-shutdownCalled:
	default:
		t.Fatal("onShutdown was not invoked")
	}
}
