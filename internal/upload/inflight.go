package upload

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// estimatedStems sizes the bloom pre-filter for a generously large number
// of distinct stems ever seen in-flight over the process lifetime; the
// filter only ever grows denser (bits are never cleared on Remove, since
// bloom filters don't support deletion), which is safe because it is never
// the source of truth — see InFlightStems.Contains.
const estimatedStems = 50_000

// InFlightStems is the process-wide "currently uploading" stem set (§4.8
// step 3, §5 "the currently-uploading stems set is shared; mutation only
// under the upload_filename mutex"). A bloom filter front-ends membership
// checks as a fast-reject pre-filter grounded in SPEC_FULL.md's domain
// stack: a stem absent from the filter is certainly absent from the exact
// set, which lets a large directory scan skip taking the map lock for the
// common case of a file that was never in flight. The filter can produce
// false positives (and never un-flags a removed stem), so Contains always
// falls through to the exact map before answering.
type InFlightStems struct {
	mu     sync.Mutex
	stems  map[string]struct{}
	filter *bloom.BloomFilter
}

// NewInFlightStems constructs an empty set.
func NewInFlightStems() *InFlightStems {
	return &InFlightStems{
		stems:  make(map[string]struct{}),
		filter: bloom.NewWithEstimates(estimatedStems, 0.01),
	}
}

// Contains reports whether stem is currently in flight.
func (s *InFlightStems) Contains(stem string) bool {
	if !s.filter.TestString(stem) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stems[stem]
	return ok
}

// Add records stems as in flight. Callers must hold the `upload_filename`
// named mutex (§4.1) around this call, per §4.8 step 3.
func (s *InFlightStems) Add(stems []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stem := range stems {
		s.stems[stem] = struct{}{}
		s.filter.AddString(stem)
	}
}

// Remove clears stems from the in-flight set. Callers must hold the
// `upload_filename` named mutex around this call, per §4.8 step 6 (finally).
func (s *InFlightStems) Remove(stems []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stem := range stems {
		delete(s.stems, stem)
	}
}
