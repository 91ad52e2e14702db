package resourceguard

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestShouldAcceptConnectionRejectsAtMaxConnections(t *testing.T) {
	conns := int64(5)
	g := New(Config{MaxConnections: 5, CPURejectThreshold: 90}, zerolog.Nop(), &conns, nil)

	accept, reason := g.ShouldAcceptConnection()
	assert.False(t, accept)
	assert.Contains(t, reason, "max connections")
}

func TestShouldAcceptConnectionRejectsOverCPUThreshold(t *testing.T) {
	conns := int64(0)
	g := New(Config{MaxConnections: 100, CPURejectThreshold: 50}, zerolog.Nop(), &conns, nil)
	g.currentCPU.Store(75.0)

	accept, reason := g.ShouldAcceptConnection()
	assert.False(t, accept)
	assert.Contains(t, reason, "cpu")
}

func TestShouldAcceptConnectionAllowsWithinLimits(t *testing.T) {
	conns := int64(1)
	g := New(Config{MaxConnections: 100, CPURejectThreshold: 90}, zerolog.Nop(), &conns, nil)
	g.currentCPU.Store(10.0)

	accept, _ := g.ShouldAcceptConnection()
	assert.True(t, accept)
}

func TestShouldAcceptConnectionRejectsOverMemoryLimit(t *testing.T) {
	conns := int64(0)
	g := New(Config{MaxConnections: 100, CPURejectThreshold: 90, MemoryLimitBytes: 1000}, zerolog.Nop(), &conns, nil)
	g.currentMemory.Store(int64(2000))

	accept, reason := g.ShouldAcceptConnection()
	assert.False(t, accept)
	assert.Equal(t, "memory limit exceeded", reason)
}
