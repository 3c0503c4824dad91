package msg

import (
	lru "github.com/hashicorp/golang-lru"
)

// failureTracker counts consecutive AUTH_FAIL/REPLAY/DECRYPT_FAIL occurrences per
// peer device_id, bounded by an LRU so a flood of unknown peers can't
// grow memory without bound. Grounded on the teacher's
// krd/enclave_client.go use of an LRU cache (there: request-id dedup;
// here: per-peer failure counts). Reaching the threshold returns true
// once and resets the count, so the engine raises exactly one
// HANDLING_ERR per run of failures (spec §7).
type failureTracker struct {
	cache     *lru.Cache
	threshold int
}

func newFailureTracker(size, threshold int) *failureTracker {
	c, _ := lru.New(size)
	return &failureTracker{cache: c, threshold: threshold}
}

// recordFailure increments the counter for deviceID and reports whether
// the threshold was just reached.
func (f *failureTracker) recordFailure(deviceID uint64) bool {
	n := 1
	if v, ok := f.cache.Get(deviceID); ok {
		n = v.(int) + 1
	}
	if n >= f.threshold {
		f.cache.Remove(deviceID)
		return true
	}
	f.cache.Add(deviceID, n)
	return false
}

// reset clears the counter for deviceID, called on any successful
// authenticated receive from that peer.
func (f *failureTracker) reset(deviceID uint64) {
	f.cache.Remove(deviceID)
}
