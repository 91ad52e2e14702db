package search

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/filament/gateway/internal/gatewayerr"
	"github.com/filament/gateway/internal/gatewaymetrics"
)

// CommandKind tags one of the four search command shapes spec.md §4.9
// exposes through the single bounded queue.
type CommandKind int

const (
	CommandUpsert CommandKind = iota
	CommandDelete
	CommandRebuild
	CommandReconcile
)

// Command is the tagged union enqueued on the writer's bounded FIFO. Ack,
// if non-nil, receives the batch's outcome (nil on success, Internal on
// apply failure) once this command's batch commits. WaitForApply signals
// the producer wants read-your-writes before returning (e.g. an
// HTTP-initiated rebuild/reconcile); non-urgent producers may leave Ack
// nil and fire-and-forget.
type Command struct {
	Kind CommandKind

	Upsert   *Document
	DeleteID string

	RebuildDocs []Document

	ReconcileUpserts   []Document
	ReconcileDeleteIDs []string

	WaitForApply bool
	Ack          chan error
}

// Writer is the single-writer task of spec.md §4.9: it owns the only
// mutating handle to the index, draining a bounded queue in batches. The
// batch-drain loop is modeled on the teacher's Kafka consumer batching
// pattern (internal/shared/kafka/consumer.go's flushBatch/accumulate
// shape), generalized from network records to search commands.
type Writer struct {
	queue    chan *Command
	index    *Index
	maxBatch int
	logger   zerolog.Logger
	metrics  *gatewaymetrics.Metrics
}

// NewWriter builds a writer over index with the given queue capacity and
// per-batch drain limit.
func NewWriter(index *Index, queueCapacity, maxBatch int, logger zerolog.Logger, metrics *gatewaymetrics.Metrics) *Writer {
	return &Writer{
		queue:    make(chan *Command, queueCapacity),
		index:    index,
		maxBatch: maxBatch,
		logger:   logger.With().Str("component", "search_writer").Logger(),
		metrics:  metrics,
	}
}

// Enqueue submits cmd to the writer's bounded queue. It blocks only on
// queue capacity (the queue is the hand-off point, not a try-send surface
// per spec.md §9 — commands must not be silently dropped); callers that
// need a hard deadline should enqueue from a context-bound goroutine and
// select on ctx.Done().
func (w *Writer) Enqueue(cmd *Command) {
	w.queue <- cmd
}

// Run drives the single writer loop until ctx is canceled: receive one
// command, drain up to maxBatch-1 more non-blocking, apply the batch,
// acknowledge every pending producer, repeat. An apply failure acks every
// pending command with err and the loop continues, per spec.md §7's "the
// writer loop continues (it does not self-terminate)".
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.queue:
			batch := []*Command{cmd}
		drain:
			for len(batch) < w.maxBatch {
				select {
				case next := <-w.queue:
					batch = append(batch, next)
				default:
					break drain
				}
			}

			start := time.Now()
			err := w.index.applyBatch(batch)
			if w.metrics != nil {
				w.metrics.SearchBatchSize.Observe(float64(len(batch)))
				w.metrics.SearchApplyLatency.Observe(time.Since(start).Seconds())
			}
			if err != nil {
				w.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("search batch apply failed")
				err = gatewayerr.Wrap(err)
			}
			for _, c := range batch {
				if c.Ack != nil {
					c.Ack <- err
				}
			}
		}
	}
}
