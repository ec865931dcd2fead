package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedBackoffStaysInRange(t *testing.T) {
	b := NewBackoff(true)
	for i := 0; i < 100; i++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Duration(MaxFixedBackoff*float64(time.Second)))
	}
}

func TestExpandingBackoffGrowsAndCaps(t *testing.T) {
	b := NewBackoff(false).(*expandingBackoff)
	prev := 0.0
	for i := 0; i < 40; i++ {
		b.Next()
		assert.LessOrEqual(t, b.b, MaxExpandingBackoff)
		assert.GreaterOrEqual(t, b.b, prev)
		prev = b.b
	}
	assert.Equal(t, MaxExpandingBackoff, b.b)
}
