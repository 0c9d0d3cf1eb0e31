// Package rtx implements the short-window retransmission cache a sender
// keeps to answer NACKs, and the gap-tracking NACK register a receiver
// keeps to schedule them. Grounded on the pack's pion NACK interceptors
// (sender_nack.go's SendBuffer, receiver_nack.go's ReceiveLog) with the
// aging/backoff rules of spec §4.3 layered on top — pion's interceptor has
// no such scheduling, it resends on every NACK it receives immediately.
package rtx

import "time"

// CacheConfig configures the RTX cache's retention window.
type CacheConfig struct {
	// MaxAge is how long a sent packet stays eligible for resend.
	// Default: 1 second.
	MaxAge time.Duration
	// MaxPackets caps the number of retained packets. Default: 1024.
	MaxPackets int
}

// DefaultCacheConfig returns the spec's defaults (§4.3).
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{MaxAge: time.Second, MaxPackets: 1024}
}

type cachedPacket struct {
	seq       uint64
	insertAt  time.Time
	data      []byte
}

// Cache retains recently sent packets keyed by extended sequence number for
// at most MaxAge or MaxPackets, whichever binds first; eviction is by
// whichever axis is currently violated.
type Cache struct {
	config CacheConfig
	order  []uint64 // insertion order, oldest first
	byseq  map[uint64]*cachedPacket
}

// NewCache creates an RTX cache with the given configuration.
func NewCache(config CacheConfig) *Cache {
	if config.MaxAge <= 0 {
		config.MaxAge = time.Second
	}
	if config.MaxPackets <= 0 {
		config.MaxPackets = 1024
	}
	return &Cache{config: config, byseq: make(map[uint64]*cachedPacket)}
}

// Insert retains a sent packet's payload for possible resend.
func (c *Cache) Insert(seq uint64, data []byte, now time.Time) {
	if _, exists := c.byseq[seq]; !exists {
		c.order = append(c.order, seq)
	}
	c.byseq[seq] = &cachedPacket{seq: seq, insertAt: now, data: data}
	c.evict(now)
}

// Lookup returns the cached packet for seq, if still resident. A miss
// (evicted or never sent) returns ok=false; the caller must drop the NACK
// silently per spec §4.3.
func (c *Cache) Lookup(seq uint64) ([]byte, bool) {
	p, ok := c.byseq[seq]
	if !ok {
		return nil, false
	}
	return p.data, true
}

// evict drops entries that violate MaxAge or MaxPackets, oldest first.
func (c *Cache) evict(now time.Time) {
	cutoff := now.Add(-c.config.MaxAge)
	i := 0
	for i < len(c.order) {
		seq := c.order[i]
		p, ok := c.byseq[seq]
		if !ok {
			i++
			continue
		}
		if p.insertAt.Before(cutoff) {
			delete(c.byseq, seq)
			i++
			continue
		}
		break
	}
	c.order = c.order[i:]

	for len(c.order) > c.config.MaxPackets {
		delete(c.byseq, c.order[0])
		c.order = c.order[1:]
	}
}

// Len reports how many packets are currently resident.
func (c *Cache) Len() int {
	return len(c.byseq)
}
