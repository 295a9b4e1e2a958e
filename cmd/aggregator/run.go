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
	"github.com/supermusr-data-pipeline/pulse-core/internal/counters"
	"github.com/supermusr-data-pipeline/pulse-core/internal/daemon"
	"github.com/supermusr-data-pipeline/pulse-core/internal/digitiser"
	"github.com/supermusr-data-pipeline/pulse-core/internal/dispatch"
	"github.com/supermusr-data-pipeline/pulse-core/internal/eventdata"
	"github.com/supermusr-data-pipeline/pulse-core/internal/framecache"
	"github.com/supermusr-data-pipeline/pulse-core/internal/log"
	"github.com/supermusr-data-pipeline/pulse-core/internal/metrics"
	"github.com/supermusr-data-pipeline/pulse-core/internal/transport"
	"github.com/supermusr-data-pipeline/pulse-core/internal/wireformat"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the frame aggregation consumer loop in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAggregator()
	},
}

// pollInterval is how often the poll loop inspects the cache head for
// completion or expiry; a fraction of any plausible frame_ttl keeps
// emission latency well under the ttl itself.
const pollInterval = 10 * time.Millisecond

func runAggregator() error {
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

	ttl, err := cfg.Aggregator.Expiry()
	if err != nil {
		return err
	}

	expectedIDs := make([]digitiser.ID, len(cfg.Aggregator.ExpectedDigitisers))
	for i, v := range cfg.Aggregator.ExpectedDigitisers {
		expectedIDs[i] = digitiser.ID(v)
	}
	expected := digitiser.NewExpectedSet(expectedIDs...)

	reg := metrics.New(prometheus.DefaultRegisterer)
	digCounters := counters.New()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		srv.Handle("/digitisers", counters.SnapshotHandler(digCounters))
		if err := srv.Start(context.Background()); err != nil {
			return err
		}
	}

	reader, err := transport.NewReader(transport.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Topics.DigitiserEvent,
		GroupID: cfg.Kafka.GroupID,
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	writer, err := transport.NewWriter(transport.WriterConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Topics.FrameEvent,
	})
	if err != nil {
		return err
	}
	defer writer.Close()

	cache := framecache.New[*eventdata.EventList](ttl, expected, eventdata.NewEventList)

	handler := dispatch.Handler{
		Topic:      cfg.Topics.DigitiserEvent,
		Identifier: wireformat.IdentDigitiserEvent,
		Parse: func(value []byte) (any, error) {
			return wireformat.DecodeDigitiserEvent(value)
		},
		Invoke: func(payload any) error {
			msg := payload.(wireformat.DigitiserEventMessage)
			cache.Push(msg.ID, msg.Metadata, msg.Events)
			digCounters.RecordContribution(msg.ID, len(msg.Events.Time), msg.Metadata.Timestamp.UnixNano())
			return nil
		},
	}
	loop := dispatch.NewLoop(reader, handler, reg)

	runner := &aggregatorRunner{
		loop:     loop,
		cache:    cache,
		writer:   writer,
		reg:      reg,
		expected: expected,
	}

	d := daemon.New(runner, nil)
	slog.Info("aggregator starting",
		"hostname", cfg.Node.Hostname,
		"digitiser_event", cfg.Topics.DigitiserEvent,
		"frame_event", cfg.Topics.FrameEvent,
		"frame_ttl", ttl,
	)
	return d.Run()
}

// aggregatorRunner drives the dispatch consumer loop and the cache poll
// loop concurrently; either returning ends the other via ctx cancellation.
type aggregatorRunner struct {
	loop     *dispatch.Loop
	cache    *framecache.Cache[*eventdata.EventList]
	writer   *transport.Writer
	reg      *metrics.Registry
	expected digitiser.ExpectedSet
}

func (r *aggregatorRunner) Run(ctx context.Context) error {
	var wg conc.WaitGroup
	errs := make([]error, 2)

	wg.Go(func() {
		errs[0] = r.loop.Run(ctx)
	})
	wg.Go(func() {
		errs[1] = r.pollLoop(ctx)
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

func (r *aggregatorRunner) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				agg, ok := r.cache.Poll()
				if !ok {
					break
				}
				r.publish(ctx, agg)
			}
		}
	}
}

func (r *aggregatorRunner) publish(ctx context.Context, agg framecache.Aggregated[*eventdata.EventList]) {
	r.reg.FramesAggregated.Inc()

	contributors := make(map[digitiser.ID]struct{}, len(agg.DigitiserIDs))
	for _, id := range agg.DigitiserIDs {
		contributors[id] = struct{}{}
	}

	payload := wireformat.EncodeFrameEvent(wireformat.FrameEventMessage{
		Metadata:     agg.Metadata,
		DigitiserIDs: agg.DigitiserIDs,
		Events:       *agg.DigitiserData,
		Complete:     r.expected.Satisfied(contributors),
	})
	if err := r.writer.Write(ctx, nil, payload); err != nil {
		slog.Error("failed to publish aggregated frame", "error", err)
	}
}
