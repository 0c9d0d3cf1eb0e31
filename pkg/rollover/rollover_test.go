package rollover

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeqRegister_SimpleAdvance(t *testing.T) {
	r := NewSeqRegister()
	assert.EqualValues(t, 0, r.Update(0))
	assert.EqualValues(t, 1, r.Update(1))
	assert.EqualValues(t, 2, r.Update(2))
}

func TestSeqRegister_WrapsForward(t *testing.T) {
	r := NewSeqRegister()
	r.Update(65534)
	assert.EqualValues(t, 65535, r.Update(65535))
	// wire 0 after 65535 is a forward step across the wrap, not backward.
	assert.EqualValues(t, 65536, r.Update(0))
	assert.EqualValues(t, 65537, r.Update(1))
}

func TestSeqRegister_ReorderWithinWindow(t *testing.T) {
	r := NewSeqRegister()
	r.Update(100)
	// A slightly earlier packet arriving late should project backward, not
	// wrap all the way around.
	assert.EqualValues(t, 99, r.Update(99))
}

func TestSeqRegister_TieBreakChoosesForward(t *testing.T) {
	r := NewSeqRegister()
	r.Update(0)
	// delta of exactly half the range (32768) is a tie; spec requires
	// choosing s' >= prev.
	got := r.Project(32768)
	assert.EqualValues(t, 32768, got)
}

func TestSeqRegister_TieBreakMirrorAlsoChoosesForward(t *testing.T) {
	r := NewSeqRegister()
	r.Update(32768)
	// wire 0 is exactly half the range behind 32768 (delta == -half); the
	// same forward tie-break must apply, giving 32768+half, not 32768-half.
	got := r.Project(0)
	assert.EqualValues(t, 65536, got)
}

func TestTimeRegister_Wraps32Bit(t *testing.T) {
	r := NewTimeRegister()
	r.Update(1<<32 - 1)
	assert.EqualValues(t, uint64(1)<<32, r.Update(0))
}

// Property: for wire sequences fed in arbitrary order within a reordering
// window <= 2^15, the extended projection (computed against a fixed,
// correct baseline) reconstructs the originating 64-bit counter.
func TestSeqRegister_ProjectReconstructsWithinWindow(t *testing.T) {
	const window = 1 << 14 // comfortably under the 2^15 bound
	rng := rand.New(rand.NewSource(42))

	base := uint64(1 << 20)
	truth := make([]uint64, 2000)
	for i := range truth {
		truth[i] = base + uint64(i)
	}

	order := rng.Perm(len(truth))

	r := NewSeqRegister()
	// Seed the baseline far enough in that backward projections never
	// underflow for this test's window: walk the register up to truth[0] in
	// forward steps smaller than half the range, so its extended value is
	// truth[0] itself rather than truth[0]'s 16-bit wire value.
	for v := uint64(0); v <= truth[0]; v += 1 << 14 {
		r.Update(v % (1 << 16))
	}

	seen := make(map[uint64]uint64, len(truth))
	for _, idx := range order {
		if idx < 1 {
			continue
		}
		// Only test deliveries within the reordering window of the
		// baseline we seeded.
		if truth[idx] < base || truth[idx]-base > window {
			continue
		}
		wire := truth[idx] % (1 << 16)
		got := r.Project(wire)
		seen[truth[idx]] = got
	}

	for want, got := range seen {
		require.Equal(t, want, got)
	}
}
