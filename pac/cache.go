package pac

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// replyCache holds raw Success replies of read-only commands, keyed by the
// command line. Entries expire after the configured TTL and the whole cache
// is purged whenever a command that changes auth or org state runs.
//
// Every purge starts a new generation. A reply fetched under an older
// generation may predate the purge and is not stored.
type replyCache struct {
	cache *ttlcache.Cache[string, string]

	mu  sync.Mutex
	gen uint64
}

func newReplyCache(ttl time.Duration) *replyCache {
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()
	return &replyCache{cache: c}
}

func (rc *replyCache) get(cmd Command) (string, bool) {
	item := rc.cache.Get(cmd.String())
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// generation returns the current generation, to be passed to set.
func (rc *replyCache) generation() uint64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.gen
}

// set stores line unless the cache was purged since gen was taken.
func (rc *replyCache) set(cmd Command, line string, gen uint64) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if gen != rc.gen {
		return false
	}
	rc.cache.Set(cmd.String(), line, ttlcache.DefaultTTL)
	return true
}

func (rc *replyCache) purge() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.gen++
	rc.cache.DeleteAll()
}

func (rc *replyCache) len() int {
	return rc.cache.Len()
}

func (rc *replyCache) close() {
	rc.cache.Stop()
}
