package log

import (
	"context"
	"fmt"

	"github.com/supermusr-data-pipeline/pulse-core/internal/transport"
)

// kafkaSink adapts a transport.Writer to io.Writer so log/slog can treat a
// Kafka topic as just another output destination, matching the teacher's
// appender_kafka.go intent (a KafkaAppenderOpt feeding a MultiWriter) but
// wired to the same kafka-go stack internal/transport already wraps.
type kafkaSink struct {
	w *transport.Writer
}

func newKafkaSink(brokers []string, topic string) (*kafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka output requires 'brokers'")
	}
	w, err := transport.NewWriter(transport.WriterConfig{Brokers: brokers, Topic: topic})
	if err != nil {
		return nil, fmt.Errorf("kafka sink: %w", err)
	}
	return &kafkaSink{w: w}, nil
}

// Write publishes p as one log-line message. slog.Handler calls Write with
// one fully-formatted record per call, so no batching is attempted here.
func (k *kafkaSink) Write(p []byte) (int, error) {
	line := make([]byte, len(p))
	copy(line, p)
	if err := k.w.Write(context.Background(), nil, line); err != nil {
		return 0, fmt.Errorf("kafka sink write: %w", err)
	}
	return len(p), nil
}

func (k *kafkaSink) Close() error { return k.w.Close() }
