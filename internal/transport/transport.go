// Package transport wraps segmentio/kafka-go behind the ordered
// partition-stream abstraction the dispatch layer needs: fetch one record
// at a time, commit unconditionally after processing regardless of outcome
// (spec §4.4 step 4).
//
// Grounded on the teacher's plugins/reporter/kafka/kafka.go (writer
// construction: balancer, compression, batch size/timeout, max attempts)
// and internal/command/kafka.go (reader-side FetchMessage/CommitMessages
// consumer loop).
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

// Record is one message read from a partition, with enough context for
// structured logging and the dispatch layer's decode step (spec §4.4).
type Record struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time

	raw kafka.Message
}

// ReaderConfig configures a topic consumer.
type ReaderConfig struct {
	Brokers        []string
	Topic          string
	GroupID        string
	MinBytes       int
	MaxBytes       int
	CommitInterval time.Duration
	StartAtEarliest bool
}

// Reader consumes one topic's partitions as an ordered record stream.
type Reader struct {
	r *kafka.Reader
}

// NewReader constructs a Reader from cfg, matching the teacher's
// kafka.NewReader(kafka.ReaderConfig{...}) construction style.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	startOffset := kafka.LastOffset
	if cfg.StartAtEarliest {
		startOffset = kafka.FirstOffset
	}

	minBytes := cfg.MinBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	commitInterval := cfg.CommitInterval
	if commitInterval <= 0 {
		commitInterval = time.Second
	}

	return &Reader{r: kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    startOffset,
		MinBytes:       minBytes,
		MaxBytes:       maxBytes,
		CommitInterval: commitInterval,
		MaxWait:        time.Second,
	})}, nil
}

// Fetch blocks until the next record is available or ctx is cancelled. The
// returned Record must be passed to Commit once the dispatch layer has
// finished processing it, regardless of whether processing succeeded
// (spec §4.4 step 4).
func (r *Reader) Fetch(ctx context.Context) (Record, error) {
	msg, err := r.r.FetchMessage(ctx)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Timestamp: msg.Time,
		raw:       msg,
	}, nil
}

// Commit acknowledges rec, advancing the consumer group's committed offset.
// Per spec §4.4 step 4, this is called unconditionally after dispatch.
func (r *Reader) Commit(ctx context.Context, rec Record) error {
	return r.r.CommitMessages(ctx, rec.raw)
}

// Close releases the underlying consumer connection.
func (r *Reader) Close() error { return r.r.Close() }

// WriterConfig configures a topic producer.
type WriterConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Compression  string // none|gzip|snappy|lz4
	MaxAttempts  int
}

// Writer produces records to one topic.
type Writer struct {
	w *kafka.Writer
}

// NewWriter constructs a Writer from cfg, matching the teacher's
// kafka.WriterConfig-style defaults (batch size 100, 100ms timeout, no
// compression unless configured, 3 attempts) ported onto the current
// kafka-go Writer struct literal form.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 100 * time.Millisecond
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		MaxAttempts:  maxAttempts,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	switch cfg.Compression {
	case "", "none":
	case "gzip":
		w.Compression = kafka.Compression(compress.Gzip)
	case "snappy":
		w.Compression = kafka.Compression(compress.Snappy)
	case "lz4":
		w.Compression = kafka.Compression(compress.Lz4)
	default:
		return nil, fmt.Errorf("invalid compression type: %s", cfg.Compression)
	}

	return &Writer{w: w}, nil
}

// Write publishes one message with the given key to the writer's topic.
func (w *Writer) Write(ctx context.Context, key, value []byte) error {
	return w.w.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

// Close flushes pending messages and releases the underlying connection.
func (w *Writer) Close() error { return w.w.Close() }
