package namedlock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSameNameReturnsSameMutex(t *testing.T) {
	r := New()

	done := make(chan struct{})
	h := r.Acquire("upload_count_https://example/1")

	go func() {
		h2 := r.Acquire("upload_count_https://example/1")
		h2.Release()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Acquire of the same name should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	h.Release()
	<-done
}

func TestDifferentNamesDoNotContend(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			h := r.Acquire(n)
			defer h.Release()
		}(name)
	}
	wg.Wait() // must not deadlock
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "upload_file_list_alice", UploadFileListKey("alice"))
	assert.Equal(t, "upload_count_https://x", UploadCountKey("https://x"))
}
