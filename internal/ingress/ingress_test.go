package ingress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameOversizeDisconnects(t *testing.T) {
	r := DecodeFrame(FrameText, make([]byte, 100), 64)
	assert.Equal(t, ResultDisconnect, r.Kind)
	assert.Equal(t, "event_too_large", r.Reason)
}

func TestDecodeFrameClose(t *testing.T) {
	r := DecodeFrame(FrameClose, nil, 64)
	assert.Equal(t, ResultDisconnect, r.Kind)
	assert.Equal(t, "client_close", r.Reason)
}

func TestDecodeFramePingContinues(t *testing.T) {
	r := DecodeFrame(FramePing, nil, 64)
	assert.Equal(t, ResultContinue, r.Kind)
}

func TestDecodeCommandSubscribe(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"v":1,"t":"subscribe","d":{"guild_id":"g1","channel_id":"c1"}}`))
	require.NoError(t, err)
	require.Equal(t, CommandSubscribe, cmd.Type)
	assert.EqualValues(t, "g1", cmd.Subscribe.GuildID)
}

func TestDecodeCommandUnknownType(t *testing.T) {
	_, err := DecodeCommand([]byte(`{"v":1,"t":"not_a_command","d":{}}`))
	var unknown *ErrUnknownEventType
	require.ErrorAs(t, err, &unknown)
}

func TestDecodeCommandMalformed(t *testing.T) {
	_, err := DecodeCommand([]byte(`not json`))
	var malformed *ErrMalformedPayload
	require.ErrorAs(t, err, &malformed)
}

func TestSlidingWindowLimiterAdmitsUpToLimit(t *testing.T) {
	l := NewSlidingWindowLimiter(3, time.Second)
	now := time.Now()
	assert.True(t, l.Allow(now))
	assert.True(t, l.Allow(now))
	assert.True(t, l.Allow(now))
	assert.False(t, l.Allow(now))
}

func TestSlidingWindowLimiterExpiresOldArrivals(t *testing.T) {
	l := NewSlidingWindowLimiter(1, 10*time.Millisecond)
	now := time.Now()
	assert.True(t, l.Allow(now))
	assert.False(t, l.Allow(now))
	assert.True(t, l.Allow(now.Add(20*time.Millisecond)))
}
