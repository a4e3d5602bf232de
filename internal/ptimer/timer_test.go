package ptimer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerTicksRepeatedly(t *testing.T) {
	var count int32
	timer := Start(context.Background(), 5*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&count, 1)
	})
	time.Sleep(35 * time.Millisecond)
	timer.StopAndWait()

	got := atomic.LoadInt32(&count)
	assert.GreaterOrEqual(t, got, int32(3))
}

func TestStopPreventsFurtherTicks(t *testing.T) {
	var count int32
	timer := Start(context.Background(), 5*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&count, 1)
	})
	time.Sleep(12 * time.Millisecond)
	timer.StopAndWait()
	after := atomic.LoadInt32(&count)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&count))
}

func TestContextCancellationStopsTimer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var count int32
	Start(ctx, 5*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&count, 1)
	})
	time.Sleep(12 * time.Millisecond)
	cancel()
	after := atomic.LoadInt32(&count)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&count))
}
