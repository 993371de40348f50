package ratelimiter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllow_BurstThenBlocked(t *testing.T) {
	l := NewPerKey(1, 3)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := NewPerKey(1, 1)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestEviction(t *testing.T) {
	l := NewPerKey(1, 1)

	for i := 0; i < maxBuckets+10; i++ {
		l.Allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256))
	}

	l.mu.Lock()
	size := len(l.buckets)
	l.mu.Unlock()
	assert.LessOrEqual(t, size, maxBuckets)
}
