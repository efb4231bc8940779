package ingest

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"

	"github.com/driftdb/chunkindex/keys"
	"github.com/driftdb/chunkindex/schema"
)

const (
	DefaultMailboxSize         = 16
	DefaultGracefulStopTimeout = 3 * time.Second
)

// Config holds the controller's tunables.
type Config struct {
	// MailboxSize is the inbound chunk buffer per controller.
	MailboxSize int `yaml:"mailbox_size"`

	// GracefulStopTimeout bounds how long a stopping controller keeps
	// draining already-enqueued chunks. Chunks still queued after the
	// bound are dropped without acknowledgement.
	GracefulStopTimeout time.Duration `yaml:"graceful_stop_timeout"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.MailboxSize, prefix+".mailbox-size", DefaultMailboxSize, "Inbound chunk buffer per ingester controller.")
	f.DurationVar(&cfg.GracefulStopTimeout, prefix+".graceful-stop-timeout", DefaultGracefulStopTimeout, "Bounded drain window on controller stop.")
}

// ApplyDefaults fills zero-valued fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.MailboxSize == 0 {
		cfg.MailboxSize = DefaultMailboxSize
	}
	if cfg.GracefulStopTimeout == 0 {
		cfg.GracefulStopTimeout = DefaultGracefulStopTimeout
	}
}

// Writer is the component chunked column buffers are forwarded to on
// acceptance. The returned chunk id is the one the write was
// persisted under.
type Writer interface {
	WriteChunk(ctx context.Context, dataset string, partitionKey keys.BinaryRecord, cc ChunkedColumns) (uint64, error)
}

// ErrValidationFailed wraps the startup validation failures; the
// specific condition was already emitted as an event.
var ErrValidationFailed = errors.New("ingester startup validation failed")

// Controller is the per-(dataset, partition, column-subset) ingester.
// It runs as a service: startup validation happens in the starting
// phase, chunk processing in the running phase, and a bounded drain
// in the stopping phase. The mailbox is processed by a single
// goroutine, so shard-version updates are linearized per partition.
type Controller struct {
	services.Service

	cfg     Config
	meta    schema.MetadataStore
	writer  Writer
	logger  log.Logger
	metrics *Metrics

	dataset      string
	partitionKey keys.BinaryRecord
	columns      []string

	mailbox chan ChunkedColumns
	events  chan Event
}

// New builds a Controller for one (dataset, partition, columns)
// claim. Call StartAsync/AwaitRunning to run validation; subscribers
// read validation outcomes and acknowledgements from Events.
func New(cfg Config, meta schema.MetadataStore, writer Writer, dataset string, partitionKey keys.BinaryRecord, columns []string, logger log.Logger, metrics *Metrics) *Controller {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = log.NewNopLogger()
	}
	c := &Controller{
		cfg:          cfg,
		meta:         meta,
		writer:       writer,
		logger:       log.With(logger, "dataset", dataset),
		metrics:      metrics,
		dataset:      dataset,
		partitionKey: partitionKey,
		columns:      columns,
		mailbox:      make(chan ChunkedColumns, cfg.MailboxSize),
		events:       make(chan Event, cfg.MailboxSize+4),
	}
	c.Service = services.NewBasicService(c.starting, c.running, c.stopping)
	return c
}

// Events returns the controller's outbound message stream. The
// channel is never closed; consumers stop reading once the service
// terminates.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Send enqueues one chunk for processing. It blocks while the mailbox
// is full and fails once ctx is done.
func (c *Controller) Send(ctx context.Context, cc ChunkedColumns) error {
	select {
	case c.mailbox <- cc:
		if c.metrics != nil {
			c.metrics.MailboxDepth.Set(float64(len(c.mailbox)))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) emit(e Event) {
	e.Dataset = c.dataset
	e.PartitionKey = c.partitionKey
	c.events <- e
}

// starting runs the startup validation sequence. Any failed step
// emits its event and fails the service.
func (c *Controller) starting(ctx context.Context) error {
	ds, err := c.meta.GetDataset(ctx, schema.DatasetRef{Name: c.dataset})
	if errors.Is(err, schema.ErrNotFound) {
		c.emit(Event{Kind: NoDatasetColumns})
		return fmt.Errorf("%w: dataset %q not found", ErrValidationFailed, c.dataset)
	}
	if err != nil {
		return fmt.Errorf("look up dataset %q: %w", c.dataset, err)
	}
	if len(c.columns) == 0 || len(ds.Columns) == 0 {
		c.emit(Event{Kind: NoDatasetColumns})
		return fmt.Errorf("%w: dataset %q has no usable columns", ErrValidationFailed, c.dataset)
	}

	if _, err := c.meta.GetPartition(ctx, ds.Ref, c.partitionKey); err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			c.emit(Event{Kind: NotFound})
			return fmt.Errorf("%w: partition not found in dataset %q", ErrValidationFailed, c.dataset)
		}
		return fmt.Errorf("look up partition: %w", err)
	}

	var missing []string
	for _, name := range c.columns {
		if _, ok := ds.ColumnByName(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		c.emit(Event{Kind: UndefinedColumns, MissingColumns: missing})
		return fmt.Errorf("%w: undefined columns %v in dataset %q", ErrValidationFailed, missing, c.dataset)
	}

	c.emit(Event{Kind: GoodToGo})
	level.Info(c.logger).Log("msg", "ingester validated and ready", "columns", len(c.columns))
	return nil
}

// running processes the mailbox until the service is asked to stop.
// Writes run against a detached context: a stop signal must not abort
// an in-flight write, it only bounds the drain in the stopping phase.
func (c *Controller) running(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cc := <-c.mailbox:
			if c.metrics != nil {
				c.metrics.MailboxDepth.Set(float64(len(c.mailbox)))
			}
			c.process(context.Background(), cc)
		}
	}
}

// stopping drains already-enqueued chunks within the graceful-stop
// window; anything still queued afterwards is dropped without an
// acknowledgement.
func (c *Controller) stopping(_ error) error {
	deadline := time.Now().Add(c.cfg.GracefulStopTimeout)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	for {
		select {
		case cc := <-c.mailbox:
			if time.Now().After(deadline) {
				level.Warn(c.logger).Log("msg", "graceful stop window elapsed; dropping pending chunks", "dropped", len(c.mailbox)+1)
				return nil
			}
			c.process(ctx, cc)
		default:
			level.Info(c.logger).Log("msg", "ingester stopped")
			return nil
		}
	}
}

// process handles one chunk: validate, forward to the writer, then
// update shard bookkeeping only if the write succeeded. Exactly one
// of Ack or ShardingError is emitted per chunk.
func (c *Controller) process(ctx context.Context, cc ChunkedColumns) {
	if cc.Version < 0 || cc.FirstRowID > cc.LastRowID {
		level.Warn(c.logger).Log("msg", "invalid chunk rejected", "version", cc.Version, "first_row", cc.FirstRowID, "last_row", cc.LastRowID)
		c.shardingError(cc)
		return
	}

	if _, err := c.writer.WriteChunk(ctx, c.dataset, c.partitionKey, cc); err != nil {
		level.Error(c.logger).Log("msg", "chunk write failed", "ack_row", cc.AckRowID, "err", err)
		c.shardingError(cc)
		return
	}

	entry := schema.ShardEntry{
		Version:    cc.Version,
		FirstRowID: cc.FirstRowID,
		LastRowID:  cc.LastRowID,
		AckRowID:   cc.AckRowID,
		AcceptedAt: time.Now().UTC(),
	}
	if err := c.meta.UpdatePartitionShards(ctx, schema.DatasetRef{Name: c.dataset}, c.partitionKey, entry); err != nil {
		level.Error(c.logger).Log("msg", "shard version update failed", "ack_row", cc.AckRowID, "err", err)
		c.shardingError(cc)
		return
	}

	if c.metrics != nil {
		c.metrics.ChunksAccepted.Inc()
		for _, buf := range cc.Columns {
			c.metrics.BytesWritten.Add(float64(len(buf)))
		}
	}
	c.emit(Event{Kind: Ack, RowID: cc.AckRowID})
}

func (c *Controller) shardingError(cc ChunkedColumns) {
	if c.metrics != nil {
		c.metrics.ShardingErrors.Inc()
	}
	c.emit(Event{Kind: ShardingError, RowID: cc.AckRowID})
}
