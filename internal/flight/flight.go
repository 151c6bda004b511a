// Package flight deduplicates concurrent asset resolutions per cache key.
package flight

import (
	"golang.org/x/sync/singleflight"

	"github.com/karstlight/assetcache/asset"
)

// Coordinator guarantees at most one running producer per key. Concurrent
// callers for the same key share the producer's outcome; the in-flight
// registration is removed once the producer settles, success or not.
//
// One coordinator must be shared by every caller of one cache manager.
type Coordinator struct {
	group singleflight.Group
}

// Do returns the handle produced for key, invoking producer only when no
// other call for key is in flight.
func (c *Coordinator) Do(key string, producer func() asset.Handle) asset.Handle {
	value, _, _ := c.group.Do(key, func() (any, error) {
		return producer(), nil
	})
	handle, _ := value.(asset.Handle)
	return handle
}
