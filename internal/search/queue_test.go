package search

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWriterAppliesEnqueuedCommandAndAcks(t *testing.T) {
	ix, err := OpenMem()
	require.NoError(t, err)
	defer ix.Close()

	w := NewWriter(ix, 16, 8, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	ack := make(chan error, 1)
	w.Enqueue(&Command{
		Kind:   CommandUpsert,
		Upsert: &Document{MessageID: "m1", GuildID: "g1", Content: "hello"},
		Ack:    ack,
	})

	select {
	case err := <-ack:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ack")
	}

	qctx, qcancel := context.WithTimeout(context.Background(), time.Second)
	defer qcancel()
	ids, err := ix.Query(qctx, "g1", "", "hello", 10)
	require.NoError(t, err)
	require.Contains(t, ids, "m1")
}

func TestWriterDrainsMultipleCommandsInOneBatch(t *testing.T) {
	ix, err := OpenMem()
	require.NoError(t, err)
	defer ix.Close()

	w := NewWriter(ix, 16, 8, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ack1 := make(chan error, 1)
	ack2 := make(chan error, 1)
	w.queue <- &Command{Kind: CommandUpsert, Upsert: &Document{MessageID: "m1", GuildID: "g1", Content: "a"}, Ack: ack1}
	w.queue <- &Command{Kind: CommandUpsert, Upsert: &Document{MessageID: "m2", GuildID: "g1", Content: "b"}, Ack: ack2}

	go w.Run(ctx)

	require.NoError(t, <-ack1)
	require.NoError(t, <-ack2)

	ids, err := ix.GuildDocumentIDs("g1", 10)
	require.NoError(t, err)
	require.Len(t, ids, 2)
}
