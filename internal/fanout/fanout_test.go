package fanout

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filament/gateway/internal/envelope"
	"github.com/filament/gateway/internal/gatewaymetrics"
	"github.com/filament/gateway/internal/ids"
	"github.com/filament/gateway/internal/subscription"
)

func newTestDispatcher() (*Dispatcher, *subscription.Index) {
	subs := subscription.New()
	metrics := gatewaymetrics.New(prometheus.NewRegistry())
	return New(subs, metrics, zerolog.Nop()), subs
}

func buildTestEvent(t *testing.T) *envelope.Built {
	t.Helper()
	built, err := envelope.Build("message_create", map[string]string{"content": "hi"})
	require.NoError(t, err)
	return built
}

// TestDispatchChannelOversizePayloadDrops covers spec.md §4.3's first
// testable scenario: a payload over the byte limit is dropped entirely,
// delivered to nobody, with no listener mutation.
func TestDispatchChannelOversizePayloadDrops(t *testing.T) {
	d, subs := newTestDispatcher()
	key := subscription.NewKey("g1", "c1")

	send := make(chan string, 1)
	subs.Insert(key, "c_keep", send)

	built := buildTestEvent(t)
	delivered, slow := d.DispatchChannel(key, built, len(built.PayloadString)-1)

	assert.Equal(t, 0, delivered)
	assert.Empty(t, slow)
	assert.Empty(t, send)
	assert.Len(t, subs.Listeners(key), 1)
}

// TestDispatchChannelFullListenerEvictedAsSlow covers spec.md §4.3's
// second testable scenario: a listener whose queue is already full is
// reported as slow and removed from the subscription index, while an OK
// listener is both delivered to and retained.
func TestDispatchChannelFullListenerEvictedAsSlow(t *testing.T) {
	d, subs := newTestDispatcher()
	key := subscription.NewKey("g1", "c1")

	full := make(chan string, 1)
	full <- "already queued, so the next try-send finds it full"
	keep := make(chan string, 1)

	subs.Insert(key, "c_full", full)
	subs.Insert(key, "c_keep", keep)

	built := buildTestEvent(t)
	delivered, slow := d.DispatchChannel(key, built, 1<<20)

	assert.Equal(t, 1, delivered)
	require.Len(t, slow, 1)
	assert.Equal(t, ids.ConnectionID("c_full"), slow[0])

	listeners := subs.Listeners(key)
	require.Len(t, listeners, 1)
	_, stillKept := listeners["c_keep"]
	assert.True(t, stillKept)
	_, stillFull := listeners["c_full"]
	assert.False(t, stillFull)

	select {
	case payload := <-keep:
		assert.Equal(t, built.PayloadString, payload)
	default:
		t.Fatal("expected c_keep to receive the dispatched payload")
	}
}

// TestDispatchChannelClosedListenerEvicted covers the Closed row of
// spec.md §4.3's table: a send on a closed channel panics, which trySend
// recovers and reports as Closed, and the dispatcher removes it from the
// index exactly like a Full listener.
func TestDispatchChannelClosedListenerEvicted(t *testing.T) {
	d, subs := newTestDispatcher()
	key := subscription.NewKey("g1", "c1")

	closed := make(chan string, 1)
	close(closed)
	subs.Insert(key, "c_closed", closed)

	built := buildTestEvent(t)
	delivered, slow := d.DispatchChannel(key, built, 1<<20)

	assert.Equal(t, 0, delivered)
	assert.Empty(t, slow)
	assert.Empty(t, subs.Listeners(key))
}

// TestDispatchChannelPrunesKeyWhenEmptied confirms a key with no surviving
// listeners is removed from the index entirely, not left behind as an
// empty entry.
func TestDispatchChannelPrunesKeyWhenEmptied(t *testing.T) {
	d, subs := newTestDispatcher()
	key := subscription.NewKey("g1", "c1")

	closed := make(chan string, 1)
	close(closed)
	subs.Insert(key, "c_closed", closed)

	built := buildTestEvent(t)
	d.DispatchChannel(key, built, 1<<20)

	assert.Empty(t, subs.Listeners(key))
	assert.Empty(t, subs.KeysForGuild("g1"))
}

// TestDispatchGuildDeliversExactlyOncePerConnection covers spec.md §4.3's
// third testable scenario: a connection subscribed to two channels of the
// same guild receives the guild-scoped event exactly once.
func TestDispatchGuildDeliversExactlyOncePerConnection(t *testing.T) {
	d, subs := newTestDispatcher()
	keyA := subscription.NewKey("g1", "c1")
	keyB := subscription.NewKey("g1", "c2")

	send := make(chan string, 2)
	subs.Insert(keyA, "c_multi", send)
	subs.Insert(keyB, "c_multi", send)

	built := buildTestEvent(t)
	delivered, slow := d.DispatchGuild("g1", built, 1<<20)

	assert.Equal(t, 1, delivered)
	assert.Empty(t, slow)
	assert.Len(t, send, 1)
}

// TestDispatchGuildFullListenerRemovedFromItsKeyOnly confirms a Full
// listener is only evicted from the channel key whose try-send actually
// failed (the seen-set means only the first key processed ever attempts
// delivery to it), not from every key it is subscribed to under the
// guild, and is still reported in the guild-wide slow list for eviction.
// Which of keyA/keyB is processed first is unspecified (map iteration),
// so the assertion only pins the invariant: exactly one key loses the
// listener, the other still has it.
func TestDispatchGuildFullListenerRemovedFromItsKeyOnly(t *testing.T) {
	d, subs := newTestDispatcher()
	keyA := subscription.NewKey("g1", "c1")
	keyB := subscription.NewKey("g1", "c2")

	full := make(chan string, 1)
	full <- "already queued"
	subs.Insert(keyA, "c_full", full)
	subs.Insert(keyB, "c_full", full)

	built := buildTestEvent(t)
	delivered, slow := d.DispatchGuild("g1", built, 1<<20)

	assert.Equal(t, 0, delivered)
	require.Len(t, slow, 1)
	assert.Equal(t, ids.ConnectionID("c_full"), slow[0])

	emptyKeys := 0
	if len(subs.Listeners(keyA)) == 0 {
		emptyKeys++
	}
	if len(subs.Listeners(keyB)) == 0 {
		emptyKeys++
	}
	assert.Equal(t, 1, emptyKeys, "exactly one of the guild's two channel keys should have evicted the full listener")
}

func TestDispatchUserDeliversToEveryGivenConnection(t *testing.T) {
	d, _ := newTestDispatcher()

	a := make(chan string, 1)
	b := make(chan string, 1)
	senders := map[ids.ConnectionID]chan<- string{"c_a": a, "c_b": b}

	built := buildTestEvent(t)
	delivered, slow := d.DispatchUser(senders, built, 1<<20)

	assert.Equal(t, 2, delivered)
	assert.Empty(t, slow)
	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
}
