package isorazor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLease_ExpiresWhenIdle(t *testing.T) {
	var expired atomic.Int32
	l := NewLease(20*time.Millisecond, func() { expired.Add(1) })

	l.Acquire()
	l.Acquire()
	l.Release()
	assert.Equal(t, 1, l.Holders())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), expired.Load())

	l.Release()
	assert.Eventually(t, func() bool { return expired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLease_AcquireRenews(t *testing.T) {
	var expired atomic.Int32
	l := NewLease(50*time.Millisecond, func() { expired.Add(1) })

	l.Acquire()
	l.Release()
	l.Acquire()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), expired.Load())
	l.Stop()
}

func TestLease_StopDisarms(t *testing.T) {
	var expired atomic.Int32
	l := NewLease(10*time.Millisecond, func() { expired.Add(1) })

	l.Acquire()
	l.Release()
	l.Stop()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), expired.Load())
}
