package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/supermusr-data-pipeline/pulse-core/internal/config"
	"github.com/supermusr-data-pipeline/pulse-core/internal/daemon"
	"github.com/supermusr-data-pipeline/pulse-core/internal/dispatch"
	"github.com/supermusr-data-pipeline/pulse-core/internal/log"
	"github.com/supermusr-data-pipeline/pulse-core/internal/metrics"
	"github.com/supermusr-data-pipeline/pulse-core/internal/runengine"
	"github.com/supermusr-data-pipeline/pulse-core/internal/transport"
	"github.com/supermusr-data-pipeline/pulse-core/internal/wireformat"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the run-state/append-writer consumer loops in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWriter()
	},
}

func runWriter() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if err := log.Init(cfg.Log); err != nil {
		return err
	}

	flushInterval, err := cfg.Writer.Interval()
	if err != nil {
		return err
	}
	flushDelay, err := cfg.Writer.Delay()
	if err != nil {
		return err
	}

	eng, err := runengine.New(cfg.Writer.TempDir, cfg.Writer.CompletedDir, cfg.Writer.ShardCount)
	if err != nil {
		return err
	}
	guarded := runengine.NewGuarded(eng)

	reg := metrics.New(prometheus.DefaultRegisterer)

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(context.Background()); err != nil {
			return err
		}
	}

	loops, err := buildWriterLoops(cfg, guarded, reg)
	if err != nil {
		return err
	}

	runner := &writerRunner{
		loops:         loops,
		engine:        guarded,
		reg:           reg,
		flushInterval: flushInterval,
		flushDelay:    flushDelay,
	}

	d := daemon.New(runner, func() {
		if err := guarded.Flush(0); err != nil {
			slog.Error("final flush on shutdown failed", "error", err)
		}
	})

	slog.Info("writer starting",
		"hostname", cfg.Node.Hostname,
		"temp_dir", cfg.Writer.TempDir,
		"completed_dir", cfg.Writer.CompletedDir,
		"flush_interval", flushInterval,
		"flush_delay", flushDelay,
	)
	return d.Run()
}

// writerLoop pairs a dispatch loop's Run method with the topic name used
// when logging that loop's exit.
type writerLoop struct {
	name string
	run  func(ctx context.Context) error
}

// buildWriterLoops constructs one dispatch loop per message kind the
// writer stage consumes (spec §6): frame_event, sample_env, run_log,
// alarm, plus a combined control loop carrying both run-start and
// run-stop, each independently reading its own topic/partition so a slow
// write on one topic never blocks delivery on another (spec §5, guarded by
// the shared Engine mutex rather than a single consumer loop).
func buildWriterLoops(cfg *config.GlobalConfig, eng *runengine.GuardedEngine, reg *metrics.Registry) ([]writerLoop, error) {
	var loops []writerLoop

	frameEventReader, err := transport.NewReader(transport.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Topics.FrameEvent,
		GroupID: cfg.Kafka.GroupID,
	})
	if err != nil {
		return nil, err
	}
	frameEventHandler := dispatch.Handler{
		Topic:      cfg.Topics.FrameEvent,
		Identifier: wireformat.IdentFrameEvent,
		Parse: func(value []byte) (any, error) {
			return wireformat.DecodeFrameEvent(value)
		},
		Invoke: func(payload any) error {
			m := payload.(wireformat.FrameEventMessage)
			return eng.EventList(runengine.FrameEvent{
				Metadata:     m.Metadata,
				DigitiserIDs: m.DigitiserIDs,
				Events:       m.Events,
				Complete:     m.Complete,
			})
		},
	}
	frameEventLoop := dispatch.NewLoop(frameEventReader, frameEventHandler, reg)
	loops = append(loops, writerLoop{name: cfg.Topics.FrameEvent, run: frameEventLoop.Run})

	sampleEnvReader, err := transport.NewReader(transport.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Topics.SampleEnv,
		GroupID: cfg.Kafka.GroupID,
	})
	if err != nil {
		return nil, err
	}
	sampleEnvHandler := dispatch.Handler{
		Topic:      cfg.Topics.SampleEnv,
		Identifier: wireformat.IdentSampleEnv,
		Parse: func(value []byte) (any, error) {
			return wireformat.DecodeSampleEnv(value)
		},
		Invoke: func(payload any) error {
			return eng.SampleEnv(payload.(runengine.SampleEnv))
		},
	}
	sampleEnvLoop := dispatch.NewLoop(sampleEnvReader, sampleEnvHandler, reg)
	loops = append(loops, writerLoop{name: cfg.Topics.SampleEnv, run: sampleEnvLoop.Run})

	runLogReader, err := transport.NewReader(transport.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Topics.RunLog,
		GroupID: cfg.Kafka.GroupID,
	})
	if err != nil {
		return nil, err
	}
	runLogHandler := dispatch.Handler{
		Topic:      cfg.Topics.RunLog,
		Identifier: wireformat.IdentLog,
		Parse: func(value []byte) (any, error) {
			return wireformat.DecodeLog(value)
		},
		Invoke: func(payload any) error {
			return eng.Log(payload.(runengine.Log))
		},
	}
	runLogLoop := dispatch.NewLoop(runLogReader, runLogHandler, reg)
	loops = append(loops, writerLoop{name: cfg.Topics.RunLog, run: runLogLoop.Run})

	alarmReader, err := transport.NewReader(transport.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Topics.Alarm,
		GroupID: cfg.Kafka.GroupID,
	})
	if err != nil {
		return nil, err
	}
	alarmHandler := dispatch.Handler{
		Topic:      cfg.Topics.Alarm,
		Identifier: wireformat.IdentAlarm,
		Parse: func(value []byte) (any, error) {
			return wireformat.DecodeAlarm(value)
		},
		Invoke: func(payload any) error {
			return eng.Alarm(payload.(runengine.Alarm))
		},
	}
	alarmLoop := dispatch.NewLoop(alarmReader, alarmHandler, reg)
	loops = append(loops, writerLoop{name: cfg.Topics.Alarm, run: alarmLoop.Run})

	controlReader, err := transport.NewReader(transport.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Topics.Control,
		GroupID: cfg.Kafka.GroupID,
	})
	if err != nil {
		return nil, err
	}
	loops = append(loops, writerLoop{
		name: cfg.Topics.Control,
		run: func(ctx context.Context) error {
			return runControlLoop(ctx, controlReader, eng, reg, cfg.Topics.Control)
		},
	})

	return loops, nil
}

// runControlLoop dispatches the control topic's two recognised payload
// kinds (run-start/pl72, run-stop/6s4t). The generic dispatch.Loop binds
// one topic to one identifier, so the control topic — which carries
// either of two identifiers — is served by this dedicated loop instead
// (spec §6 lists both under a single "control" topic).
func runControlLoop(ctx context.Context, reader *transport.Reader, eng *runengine.GuardedEngine, reg *metrics.Registry, topic string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := reader.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("transport fetch failed", "topic", topic, "error", err)
			continue
		}

		dispatchControlRecord(rec, eng, reg)

		if err := reader.Commit(ctx, rec); err != nil {
			slog.Error("commit failed", "topic", rec.Topic, "offset", rec.Offset, "error", err)
		}
	}
}

func dispatchControlRecord(rec transport.Record, eng *runengine.GuardedEngine, reg *metrics.Registry) {
	if len(rec.Value) < dispatch.IdentifierSize {
		reg.IdentifierMismatch.WithLabelValues(rec.Topic).Inc()
		slog.Warn("message shorter than identifier prefix", "topic", rec.Topic, "offset", rec.Offset)
		return
	}
	var id [dispatch.IdentifierSize]byte
	copy(id[:], rec.Value[:dispatch.IdentifierSize])

	switch id {
	case wireformat.IdentRunStart:
		rs, err := wireformat.DecodeRunStart(rec.Value)
		if err != nil {
			reg.UnableToDecodeMessage.WithLabelValues(rec.Topic).Inc()
			slog.Error("run-start decode failed", "topic", rec.Topic, "offset", rec.Offset, "error", err)
			return
		}
		if err := eng.Start(rs); err != nil {
			slog.Error("run-start failed", "run_name", rs.RunName, "error", err)
		}
	case wireformat.IdentRunStop:
		rs, err := wireformat.DecodeRunStop(rec.Value)
		if err != nil {
			reg.UnableToDecodeMessage.WithLabelValues(rec.Topic).Inc()
			slog.Error("run-stop decode failed", "topic", rec.Topic, "offset", rec.Offset, "error", err)
			return
		}
		if err := eng.Stop(rs); err != nil {
			slog.Error("run-stop failed", "run_name", rs.RunName, "error", err)
		}
	default:
		reg.IdentifierMismatch.WithLabelValues(rec.Topic).Inc()
		slog.Warn("unrecognised control identifier", "topic", rec.Topic, "offset", rec.Offset, "got", id)
		return
	}
	reg.MessagesProcessed.WithLabelValues(rec.Topic).Inc()
}

// writerRunner drives every dispatch loop plus the periodic flush sweep
// concurrently; any one returning ends the others via ctx cancellation.
type writerRunner struct {
	loops         []writerLoop
	engine        *runengine.GuardedEngine
	reg           *metrics.Registry
	flushInterval time.Duration
	flushDelay    time.Duration
}

func (r *writerRunner) Run(ctx context.Context) error {
	var wg conc.WaitGroup
	errs := make([]error, len(r.loops)+1)

	for i, loop := range r.loops {
		i, loop := i, loop
		wg.Go(func() {
			err := loop.run(ctx)
			if err != nil && err != context.Canceled {
				slog.Error("dispatch loop exited", "topic", loop.name, "error", err)
			}
			errs[i] = err
		})
	}
	wg.Go(func() {
		errs[len(r.loops)] = r.flushLoop(ctx)
	})
	wg.Wait()

	var combined error
	for _, err := range errs {
		if err != nil && err != context.Canceled {
			combined = multierr.Append(combined, err)
		}
	}
	return combined
}

func (r *writerRunner) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.engine.Flush(r.flushDelay); err != nil {
				slog.Error("flush failed", "error", err)
			}
		}
	}
}
