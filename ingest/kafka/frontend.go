package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/driftdb/chunkindex/ingest"
	"github.com/driftdb/chunkindex/keys"
	"github.com/driftdb/chunkindex/schema"
)

// FrontendConfig holds configuration for the ingestion front-end.
type FrontendConfig struct {
	ConsumerConfig   *ConsumerConfig
	ControllerConfig ingest.Config

	// AckWaitTimeout bounds how long one record may wait for its
	// controller's acknowledgement before the front-end gives up and
	// exits (leaving offsets uncommitted for redelivery).
	AckWaitTimeout time.Duration

	// ValidationWaitTimeout bounds controller startup validation.
	ValidationWaitTimeout time.Duration
}

// Validate checks if the front-end configuration is valid.
func (f *FrontendConfig) Validate() error {
	if f.ConsumerConfig == nil {
		return fmt.Errorf("consumer config cannot be nil")
	}
	if err := f.ConsumerConfig.Validate(); err != nil {
		return fmt.Errorf("invalid consumer config: %w", err)
	}
	if f.AckWaitTimeout <= 0 {
		return fmt.Errorf("ack wait timeout must be positive")
	}
	if f.ValidationWaitTimeout <= 0 {
		return fmt.Errorf("validation wait timeout must be positive")
	}
	return nil
}

// controllerHandle pairs a running controller with its event stream,
// so reuse across records is cheap.
type controllerHandle struct {
	ctrl   *ingest.Controller
	events <-chan ingest.Event
}

// Frontend consumes wire-encoded ChunkedColumns records and dispatches
// each to the ingester controller owning its (dataset, partition),
// creating and validating one on first sight. Offsets commit only
// after the owning controller acknowledges, so delivery into the
// ingest path is at-least-once.
type Frontend struct {
	consumer    *Consumer
	meta        schema.MetadataStore
	writer      ingest.Writer
	cfg         FrontendConfig
	metrics     *Metrics
	ingestMet   *ingest.Metrics
	logger      log.Logger
	controllers map[string]*controllerHandle
}

// NewFrontend creates a new ingestion front-end.
func NewFrontend(cfg FrontendConfig, meta schema.MetadataStore, writer ingest.Writer, metrics *Metrics, ingestMetrics *ingest.Metrics, logger log.Logger) (*Frontend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	consumer, err := NewConsumer(cfg.ConsumerConfig)
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Frontend{
		consumer:    consumer,
		meta:        meta,
		writer:      writer,
		cfg:         cfg,
		metrics:     metrics,
		ingestMet:   ingestMetrics,
		logger:      logger,
		controllers: make(map[string]*controllerHandle),
	}, nil
}

// Run starts the consumption loop.
func (f *Frontend) Run(ctx context.Context) error {
	if err := f.consumer.CheckTopic(ctx); err != nil {
		return fmt.Errorf("topic check: %w", err)
	}
	level.Info(f.logger).Log("msg", "starting kafka ingestion front-end", "topic", f.cfg.ConsumerConfig.Topic)

	for {
		select {
		case <-ctx.Done():
			level.Info(f.logger).Log("msg", "shutting down kafka ingestion front-end")
			return ctx.Err()
		default:
		}

		fetches := f.consumer.Poll(ctx)
		if fetches.IsClientClosed() {
			return fmt.Errorf("kafka client closed")
		}

		if err := f.processFetches(ctx, fetches); err != nil {
			return fmt.Errorf("process fetches: %w", err)
		}
	}
}

func (f *Frontend) processFetches(ctx context.Context, fetches kgo.Fetches) error {
	if fetches.Empty() {
		return nil
	}

	for iter := fetches.RecordIter(); !iter.Done(); {
		rec := iter.Next()

		if f.metrics != nil {
			f.metrics.BytesRead.Add(float64(len(rec.Value)))
			f.metrics.KafkaOffset.WithLabelValues(fmt.Sprintf("%d", rec.Partition)).Set(float64(rec.Offset))
		}

		msg, err := DecodeMessage(rec.Value)
		if err != nil {
			// Undecodable records are skipped, not retried; redelivery
			// would fail identically forever.
			if f.metrics != nil {
				f.metrics.RecordsInvalid.Inc()
			}
			level.Error(f.logger).Log("msg", "failed to decode record", "offset", rec.Offset, "err", err)
			continue
		}

		if err := f.dispatch(ctx, msg); err != nil {
			return err
		}
	}

	// Commit offsets only after every record in the batch was
	// acknowledged by its controller.
	if err := f.consumer.CommitOffsets(ctx); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}

	return nil
}

// dispatch routes msg to its partition's controller and blocks until
// that controller acknowledges it one way or the other.
func (f *Frontend) dispatch(ctx context.Context, msg Message) error {
	h, err := f.controllerFor(ctx, msg)
	if err != nil {
		if errors.Is(err, ingest.ErrValidationFailed) {
			// The record targets a dataset/partition/column set that
			// cannot be ingested; the validation event was already
			// logged. Drop rather than wedge the topic.
			level.Warn(f.logger).Log("msg", "dropping record for unvalidatable target", "dataset", msg.Dataset, "err", err)
			return nil
		}
		return err
	}

	if err := h.ctrl.Send(ctx, msg.Chunk); err != nil {
		return fmt.Errorf("send chunk: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, f.cfg.AckWaitTimeout)
	defer cancel()
	for {
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("wait for ack of row %d: %w", msg.Chunk.AckRowID, waitCtx.Err())
		case ev := <-h.events:
			switch ev.Kind {
			case ingest.Ack:
				if ev.RowID == msg.Chunk.AckRowID {
					return nil
				}
			case ingest.ShardingError:
				if ev.RowID == msg.Chunk.AckRowID {
					return fmt.Errorf("sharding error for row %d in dataset %q", ev.RowID, ev.Dataset)
				}
			}
		}
	}
}

func (f *Frontend) controllerFor(ctx context.Context, msg Message) (*controllerHandle, error) {
	key := msg.Dataset + "\x00" + string(msg.PartitionKey)
	if h, ok := f.controllers[key]; ok {
		return h, nil
	}

	columns := make([]string, 0, len(msg.Chunk.Columns))
	for name := range msg.Chunk.Columns {
		columns = append(columns, name)
	}

	ctrl := ingest.New(f.cfg.ControllerConfig, f.meta, f.writer,
		msg.Dataset, keys.FromBytes(nil, msg.PartitionKey), columns,
		f.logger, f.ingestMet)

	if err := ctrl.StartAsync(ctx); err != nil {
		return nil, fmt.Errorf("start controller: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, f.cfg.ValidationWaitTimeout)
	defer cancel()
	if err := ctrl.AwaitRunning(waitCtx); err != nil {
		// Validation emits before failing, so FailureCase carries the
		// terminal reason.
		if fc := ctrl.FailureCase(); fc != nil {
			return nil, fc
		}
		return nil, err
	}

	h := &controllerHandle{ctrl: ctrl, events: ctrl.Events()}
	f.controllers[key] = h
	level.Info(f.logger).Log("msg", "controller started", "dataset", msg.Dataset, "columns", len(columns))
	return h, nil
}

// Close stops every controller (bounded drain each) and releases the
// Kafka client.
func (f *Frontend) Close() {
	for _, h := range f.controllers {
		h.ctrl.StopAsync()
	}
	for _, h := range f.controllers {
		_ = h.ctrl.AwaitTerminated(context.Background())
	}
	if f.consumer != nil {
		f.consumer.Close()
	}
}
