package rtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_LookupHitAndMiss(t *testing.T) {
	c := NewCache(DefaultCacheConfig())
	now := time.Now()
	c.Insert(1, []byte("a"), now)

	data, ok := c.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), data)

	_, ok = c.Lookup(2)
	assert.False(t, ok)
}

func TestCache_EvictsByAge(t *testing.T) {
	c := NewCache(CacheConfig{MaxAge: 100 * time.Millisecond, MaxPackets: 1024})
	t0 := time.Now()
	c.Insert(1, []byte("a"), t0)
	c.Insert(2, []byte("b"), t0.Add(50*time.Millisecond))

	// Advance past seq 1's age but not seq 2's.
	c.Insert(3, []byte("c"), t0.Add(150*time.Millisecond))

	_, ok := c.Lookup(1)
	assert.False(t, ok, "seq 1 should have aged out")
	_, ok = c.Lookup(2)
	assert.True(t, ok)
	_, ok = c.Lookup(3)
	assert.True(t, ok)
}

func TestCache_EvictsByCount(t *testing.T) {
	c := NewCache(CacheConfig{MaxAge: time.Hour, MaxPackets: 2})
	now := time.Now()
	c.Insert(1, []byte("a"), now)
	c.Insert(2, []byte("b"), now)
	c.Insert(3, []byte("c"), now)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Lookup(1)
	assert.False(t, ok, "oldest packet should be evicted first")
}

func TestRegister_DetectsGapAndSchedulesAfterDelay(t *testing.T) {
	r := NewRegister(DefaultNackConfig())
	t0 := time.Now()
	r.Receive(1, t0)
	r.Receive(3, t0) // seq 2 is missing

	assert.True(t, r.HasPending())
	assert.Empty(t, r.DueNacks(t0), "should not nack before reorder delay elapses")

	due := r.DueNacks(t0.Add(31 * time.Millisecond))
	assert.Equal(t, []uint64{2}, due)
}

func TestRegister_FillingGapClearsIt(t *testing.T) {
	r := NewRegister(DefaultNackConfig())
	t0 := time.Now()
	r.Receive(1, t0)
	r.Receive(3, t0)
	r.Receive(2, t0.Add(5*time.Millisecond)) // late arrival fills the gap

	assert.False(t, r.HasPending())
	assert.Empty(t, r.DueNacks(t0.Add(40*time.Millisecond)))
}

func TestRegister_MaxNacksAndAgeOut(t *testing.T) {
	cfg := NackConfig{ReorderDelay: time.Millisecond, MaxNacks: 2, AgeOut: time.Second}
	r := NewRegister(cfg)
	t0 := time.Now()
	r.Receive(1, t0)
	r.Receive(3, t0)

	now := t0.Add(2 * time.Millisecond)
	due := r.DueNacks(now)
	require.Equal(t, []uint64{2}, due)

	// Second nack after its backoff.
	now = now.Add(3 * time.Millisecond)
	due = r.DueNacks(now)
	require.Equal(t, []uint64{2}, due)

	// Gap should now be written off: no more nacks ever, regardless of time.
	assert.Empty(t, r.DueNacks(now.Add(time.Millisecond)))
	assert.Empty(t, r.DueNacks(now.Add(time.Hour)))
}

func TestRegister_AgesOutWithoutReachingMaxNacks(t *testing.T) {
	cfg := NackConfig{ReorderDelay: time.Millisecond, MaxNacks: 5, AgeOut: 10 * time.Millisecond}
	r := NewRegister(cfg)
	t0 := time.Now()
	r.Receive(1, t0)
	r.Receive(3, t0)

	assert.Empty(t, r.DueNacks(t0.Add(20*time.Millisecond)), "gap should have aged out")
	assert.False(t, r.HasPending())
}
