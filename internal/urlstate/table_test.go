package urlstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStateIsIdle(t *testing.T) {
	tb := New()
	assert.Equal(t, Idle, tb.Get("https://example/1"))
}

func TestSetAndGet(t *testing.T) {
	tb := New()
	tb.Set("u", Downloading)
	assert.Equal(t, Downloading, tb.Get("u"))
	tb.Set("u", Idle)
	assert.Equal(t, Idle, tb.Get("u"))
}

func TestTryBeginUploadIsExclusive(t *testing.T) {
	tb := New()
	assert.True(t, tb.TryBeginUpload("u"))
	assert.False(t, tb.TryBeginUpload("u"))
	tb.EndUpload("u")
	assert.True(t, tb.TryBeginUpload("u"))
}

func TestConcurrentTryBeginUploadOnlyOneWins(t *testing.T) {
	tb := New()
	var wg sync.WaitGroup
	wins := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- tb.TryBeginUpload("u")
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for w := range wins {
		if w {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
