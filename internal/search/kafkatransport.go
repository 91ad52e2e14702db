package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// CommandsTopic is the Kafka/Redpanda topic carrying search commands across
// gateway instances, partitioned by guild_id so that a single guild's
// commands always land on the same partition and therefore, combined with
// a single consumer group member owning the writer, preserve spec.md
// §5's "strict arrival order within a single writer batch" per guild.
const CommandsTopic = "search.commands"

// wireCommand is Command's JSON wire shape. Ack/WaitForApply are local-only
// concerns (a remote producer cannot hold an in-process ack channel across
// the wire) and are deliberately excluded; a remote producer that needs
// read-your-writes must poll the HTTP surface instead.
type wireCommand struct {
	Kind               CommandKind `json:"kind"`
	Upsert             *Document   `json:"upsert,omitempty"`
	DeleteID           string      `json:"delete_id,omitempty"`
	RebuildDocs        []Document  `json:"rebuild_docs,omitempty"`
	ReconcileUpserts   []Document  `json:"reconcile_upserts,omitempty"`
	ReconcileDeleteIDs []string    `json:"reconcile_delete_ids,omitempty"`
}

func toWire(cmd *Command) wireCommand {
	return wireCommand{
		Kind:               cmd.Kind,
		Upsert:             cmd.Upsert,
		DeleteID:           cmd.DeleteID,
		RebuildDocs:        cmd.RebuildDocs,
		ReconcileUpserts:   cmd.ReconcileUpserts,
		ReconcileDeleteIDs: cmd.ReconcileDeleteIDs,
	}
}

func fromWire(w wireCommand) *Command {
	return &Command{
		Kind:               w.Kind,
		Upsert:             w.Upsert,
		DeleteID:           w.DeleteID,
		RebuildDocs:        w.RebuildDocs,
		ReconcileUpserts:   w.ReconcileUpserts,
		ReconcileDeleteIDs: w.ReconcileDeleteIDs,
	}
}

// partitionKey picks the guild_id to key the record by, falling back to the
// empty key for Rebuild (which has no single guild scope).
func partitionKey(cmd *Command) string {
	switch cmd.Kind {
	case CommandUpsert:
		return cmd.Upsert.GuildID
	case CommandReconcile:
		if len(cmd.ReconcileUpserts) > 0 {
			return cmd.ReconcileUpserts[0].GuildID
		}
		return ""
	default:
		return ""
	}
}

// Producer publishes search commands onto CommandsTopic for the writer's
// instance to consume, letting any gateway process originate a command
// without owning the single writer itself.
type Producer struct {
	client *kgo.Client
	logger zerolog.Logger
}

// NewProducer dials brokers and builds a Producer.
func NewProducer(brokers []string, logger zerolog.Logger) (*Producer, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("search: kafka producer client: %w", err)
	}
	return &Producer{client: client, logger: logger.With().Str("component", "search_producer").Logger()}, nil
}

// Publish sends cmd to CommandsTopic, blocking until the broker acks it.
func (p *Producer) Publish(ctx context.Context, cmd *Command) error {
	payload, err := json.Marshal(toWire(cmd))
	if err != nil {
		return fmt.Errorf("search: marshal command: %w", err)
	}
	record := &kgo.Record{Topic: CommandsTopic, Key: []byte(partitionKey(cmd)), Value: payload}

	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("search: produce command: %w", err)
	}
	return nil
}

// Close releases the producer's client.
func (p *Producer) Close() { p.client.Close() }

// Consumer bridges CommandsTopic into the in-process writer's bounded
// queue. Modeled on the teacher's franz-go consume loop
// (internal/shared/kafka/consumer.go), generalized from broadcasting raw
// bytes to decoding and enqueueing typed search commands.
type Consumer struct {
	client *kgo.Client
	writer *Writer
	logger zerolog.Logger
}

// NewConsumer builds a Consumer that feeds writer from brokers/group.
func NewConsumer(brokers []string, group string, writer *Writer, logger zerolog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(CommandsTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		return nil, fmt.Errorf("search: kafka consumer client: %w", err)
	}
	return &Consumer{client: client, writer: writer, logger: logger.With().Str("component", "search_consumer").Logger()}, nil
}

// Run polls CommandsTopic until ctx is canceled, decoding and enqueueing
// each record onto the writer's queue in arrival order.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.client.Close()
			return
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		for _, err := range fetches.Errors() {
			c.logger.Error().Err(err.Err).Str("topic", err.Topic).Int32("partition", err.Partition).Msg("search command fetch error")
		}

		fetches.EachRecord(func(record *kgo.Record) {
			var w wireCommand
			if err := json.Unmarshal(record.Value, &w); err != nil {
				c.logger.Error().Err(err).Msg("search command decode failed, dropping record")
				return
			}
			c.writer.Enqueue(fromWire(w))
		})
	}
}
