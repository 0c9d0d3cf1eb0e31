// Package rollover projects cyclic 16-bit (RTP sequence number) and 32-bit
// (RTP timestamp) wire values onto a monotone 64-bit counter, so the rest of
// the core never has to reason about wraparound again.
package rollover

// Register tracks a single cyclic wire counter and its 64-bit extension.
// Create one with NewSeqRegister or NewTimeRegister (a zero Register has no
// modulus); the first Update seeds the baseline.
type Register struct {
	modulus  uint64
	hasValue bool
	extended uint64
}

// NewSeqRegister returns a Register for 16-bit RTP sequence numbers.
func NewSeqRegister() *Register {
	return &Register{modulus: 1 << 16}
}

// NewTimeRegister returns a Register for 32-bit RTP timestamps.
func NewTimeRegister() *Register {
	return &Register{modulus: 1 << 32}
}

// Extended returns the most recently stored 64-bit extended value and
// whether any value has been observed yet.
func (r *Register) Extended() (uint64, bool) {
	return r.extended, r.hasValue
}

// Project computes the extended 64-bit value for wire without mutating the
// register. Returns wire itself (as the baseline) if nothing has been
// observed yet.
func (r *Register) Project(wire uint64) uint64 {
	wire %= r.modulus
	if !r.hasValue {
		return wire
	}
	return project(r.extended, r.modulus, wire)
}

// Update projects wire and stores the result as the new baseline, then
// returns it. Update must be called in delivery order; out-of-order
// deliveries should use Project on a snapshot instead, or accept that the
// baseline will track the most recently processed packet, not the highest.
func (r *Register) Update(wire uint64) uint64 {
	ext := r.Project(wire)
	r.extended = ext
	r.hasValue = true
	return ext
}

// project is a pure function of the stored (lastExtended) and a new wire
// value: it returns the unique s' with s' mod modulus == wire minimizing
// |s' - lastExtended|, ties resolved by choosing s' >= lastExtended.
func project(lastExtended, modulus, wire uint64) uint64 {
	lastWire := lastExtended % modulus
	delta := int64(wire) - int64(lastWire)
	half := int64(modulus / 2)

	if delta > half {
		delta -= int64(modulus)
	} else if delta <= -half {
		// delta == -half is an exact-half tie: lastWire-half and lastWire+half
		// (mod modulus) are equidistant. Resolve forward (s' >= lastExtended),
		// matching the +half case above, which is already forward as-is.
		delta += int64(modulus)
	}

	ext := int64(lastExtended) + delta
	if ext < 0 {
		// Only possible this early in a stream before enough history has
		// accumulated to justify the backward step; clamp instead of
		// wrapping into a huge uint64.
		ext = int64(wire)
	}
	return uint64(ext)
}
