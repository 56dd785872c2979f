package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstPerKey(t *testing.T) {
	l := New(0.001, 2)
	assert.True(t, l.Allow("alice"))
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))
	assert.True(t, l.Allow("bob"))

	l.Forget("alice")
	assert.True(t, l.Allow("alice"))
}

func TestLimiter_DisabledWhenRateIsZero(t *testing.T) {
	l := New(0, 1)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("alice"))
	}
	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow("alice"))
}
