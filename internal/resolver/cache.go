package resolver

import (
	"strings"
	"sync"
	"time"

	"github.com/dnsscience/tacodnsd/internal/wire"
)

// CacheKey identifies a cached answer: qname (lowercased), qtype, qclass.
type CacheKey struct {
	Name  string
	Type  uint16
	Class uint16
}

func cacheKeyFor(q wire.Question) CacheKey {
	return CacheKey{Name: strings.ToLower(q.Name), Type: q.Type, Class: q.Class}
}

// Result is a resolved answer: the three resource-record sections an
// upstream response carried, independent of the wire message that produced
// them.
type Result struct {
	Answer     []wire.Resource
	Authority  []wire.Resource
	Additional []wire.Resource
}

type cacheEntry struct {
	cacheTime  time.Time
	expiration time.Time
	result     Result
}

// Cache is the process-wide answer cache: a single mutex guarding a plain
// map. One mutex is enough: critical sections are a map lookup plus an
// optional insert or delete, and lookup volume at a single upstream is
// nowhere near the scale that would justify sharding.
type Cache struct {
	mu      sync.Mutex
	entries map[CacheKey]cacheEntry
}

// NewCache returns an empty cache. It never bounds size or evicts beyond
// lazy TTL expiry.
func NewCache() *Cache {
	return &Cache{entries: make(map[CacheKey]cacheEntry)}
}

// Get returns a cloned answer with every record's TTL reduced by the time
// elapsed since it was cached, or ok=false on a miss or expired entry.
func (c *Cache) Get(key CacheKey, now time.Time) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if !now.Before(e.expiration) {
		delete(c.entries, key)
		return Result{}, false
	}

	elapsed := uint32(now.Sub(e.cacheTime).Seconds())
	return Result{
		Answer:     decrementTTLs(e.result.Answer, elapsed),
		Authority:  decrementTTLs(e.result.Authority, elapsed),
		Additional: decrementTTLs(e.result.Additional, elapsed),
	}, true
}

// Put stores a fresh answer, expiring at now+leastTTL.
func (c *Cache) Put(key CacheKey, result Result, now time.Time, leastTTL uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		cacheTime:  now,
		expiration: now.Add(time.Duration(leastTTL) * time.Second),
		result:     result,
	}
}

func decrementTTLs(rrs []wire.Resource, elapsed uint32) []wire.Resource {
	if len(rrs) == 0 {
		return nil
	}
	out := make([]wire.Resource, len(rrs))
	for i, rr := range rrs {
		out[i] = rr
		if rr.TTL > elapsed {
			out[i].TTL -= elapsed
		} else {
			out[i].TTL = 0
		}
	}
	return out
}

// leastTTL returns the minimum TTL across every record in a response, or 0
// if it carried none.
func leastTTL(m *wire.Message) uint32 {
	var least uint32
	found := false
	for _, rrs := range [][]wire.Resource{m.Answer, m.Authority, m.Additional} {
		for _, rr := range rrs {
			if !found || rr.TTL < least {
				least = rr.TTL
				found = true
			}
		}
	}
	return least
}
