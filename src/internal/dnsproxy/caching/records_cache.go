// Package caching keeps recently resolved addresses so repeated queries
// do not reach the upstream resolvers.
package caching

import (
	"container/list"
	"net/netip"
	"sync"
	"time"
)

// DefaultMaxDomains bounds the cache when no explicit size is configured.
const DefaultMaxDomains = 10000

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
}

type recordEntry struct {
	domain   string
	address  netip.Addr
	inserted time.Time
	deadline time.Time
	element  *list.Element
}

// RecordsCache maps a normalized domain name to one IPv4 address with a TTL.
// When full, the entry inserted first is evicted.
type RecordsCache struct {
	mu sync.Mutex

	records map[string]*recordEntry

	// insertion order, front = oldest
	order *list.List

	maxDomains int
	now        func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewRecordsCache creates a cache holding at most maxDomains entries.
func NewRecordsCache(maxDomains int) *RecordsCache {
	if maxDomains <= 0 {
		maxDomains = DefaultMaxDomains
	}
	return &RecordsCache{
		records:    make(map[string]*recordEntry),
		order:      list.New(),
		maxDomains: maxDomains,
		now:        time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (r *RecordsCache) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Get returns the cached address for domain. An expired entry is removed and reported as a miss.
func (r *RecordsCache) Get(domain string) (netip.Addr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.records[domain]
	if !ok {
		r.misses++
		return netip.Addr{}, false
	}

	if r.now().After(entry.deadline) {
		r.remove(entry)
		r.evictions++
		r.misses++
		return netip.Addr{}, false
	}

	r.hits++
	return entry.address, true
}

// Put stores address for domain for ttl seconds, replacing any previous entry.
// A zero ttl is ignored.
func (r *RecordsCache) Put(domain string, address netip.Addr, ttl uint32) {
	if ttl == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if old, ok := r.records[domain]; ok {
		r.remove(old)
	}

	for len(r.records) >= r.maxDomains {
		r.evictOldest()
	}

	entry := &recordEntry{
		domain:   domain,
		address:  address,
		inserted: now,
		deadline: now.Add(time.Duration(ttl) * time.Second),
	}
	entry.element = r.order.PushBack(entry)
	r.records[domain] = entry
}

// EvictExpiredEntries removes every expired entry.
func (r *RecordsCache) EvictExpiredEntries() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	evicted := 0
	for e := r.order.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(*recordEntry)
		if now.After(entry.deadline) {
			r.remove(entry)
			evicted++
		}
		e = next
	}
	r.evictions += uint64(evicted)
	return evicted
}

// Clear removes all entries. Counters are kept.
func (r *RecordsCache) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make(map[string]*recordEntry)
	r.order.Init()
}

// Len returns the number of stored entries, expired ones included.
func (r *RecordsCache) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Stats returns cache statistics.
func (r *RecordsCache) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Hits:      r.hits,
		Misses:    r.misses,
		Evictions: r.evictions,
		Size:      len(r.records),
	}
}

// Must be called with the lock held.
func (r *RecordsCache) evictOldest() {
	front := r.order.Front()
	if front == nil {
		return
	}
	r.remove(front.Value.(*recordEntry))
	r.evictions++
}

// Must be called with the lock held.
func (r *RecordsCache) remove(entry *recordEntry) {
	r.order.Remove(entry.element)
	delete(r.records, entry.domain)
}
