package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFor_ZeroXPIsLevelOne(t *testing.T) {
	p := NewLevelPolicy(1000)
	assert.Equal(t, 1, p.LevelFor(0))
	assert.Equal(t, 1, p.LevelFor(-50))
}

func TestLevelFor_Thresholds(t *testing.T) {
	p := NewLevelPolicy(1000)

	// 1000 to reach level 2, 2000 more for level 3, 3000 more for level 4
	assert.Equal(t, int64(0), p.ThresholdFor(1))
	assert.Equal(t, int64(1000), p.ThresholdFor(2))
	assert.Equal(t, int64(3000), p.ThresholdFor(3))
	assert.Equal(t, int64(6000), p.ThresholdFor(4))

	assert.Equal(t, 1, p.LevelFor(999))
	assert.Equal(t, 2, p.LevelFor(1000))
	assert.Equal(t, 2, p.LevelFor(2999))
	assert.Equal(t, 3, p.LevelFor(3000))
	assert.Equal(t, 4, p.LevelFor(6000))
}

func TestLevelFor_Monotonic(t *testing.T) {
	p := NewLevelPolicy(1000)
	prev := p.LevelFor(0)
	for xp := int64(0); xp <= 50000; xp += 137 {
		level := p.LevelFor(xp)
		assert.GreaterOrEqual(t, level, prev, "level regressed at xp=%d", xp)
		prev = level
	}
}

func TestSnapshot(t *testing.T) {
	p := NewLevelPolicy(1000)

	level, currentXP, fraction := p.Snapshot(100)
	assert.Equal(t, 1, level)
	assert.Equal(t, int64(100), currentXP)
	assert.InDelta(t, 0.1, fraction, 1e-9)

	// Exactly at a threshold: fresh level, zero progress
	level, currentXP, fraction = p.Snapshot(1000)
	assert.Equal(t, 2, level)
	assert.Equal(t, int64(0), currentXP)
	assert.Zero(t, fraction)

	// 2500 total: level 2 with 1500 of the 2000 needed
	level, currentXP, fraction = p.Snapshot(2500)
	assert.Equal(t, 2, level)
	assert.Equal(t, int64(1500), currentXP)
	assert.InDelta(t, 0.75, fraction, 1e-9)
}

func TestSnapshot_FractionClamped(t *testing.T) {
	p := NewLevelPolicy(1000)
	for xp := int64(0); xp <= 100000; xp += 997 {
		_, _, fraction := p.Snapshot(xp)
		assert.GreaterOrEqual(t, fraction, 0.0)
		assert.LessOrEqual(t, fraction, 1.0)
	}
}

func TestNewLevelPolicy_DefaultsBadBase(t *testing.T) {
	p := NewLevelPolicy(0)
	assert.Equal(t, int64(1000), p.BaseXP)

	p = NewLevelPolicy(500)
	assert.Equal(t, int64(500), p.BaseXP)
	assert.Equal(t, 2, p.LevelFor(500))
}
