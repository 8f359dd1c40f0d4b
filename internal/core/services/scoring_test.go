package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultScorer(t *testing.T) {
	s := DefaultScorer{}

	assert.Equal(t, 0.0, s.Score(0, 0, 0), "no income scores zero")
	assert.Equal(t, 100.0, s.Score(100000, 0, 0), "full headroom, no debt")
	assert.Equal(t, 0.0, s.Score(100, 200, 100), "negative headroom clamps")
	assert.InDelta(t, 65.0, s.Score(100000, 50000, 0), 0.0001)
	assert.InDelta(t, 50.0, s.Score(100000, 50000, 50), 0.0001)
}
