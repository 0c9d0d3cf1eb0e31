package stun

import "crypto/rand"

// NewTransactionID generates a cryptographically random transaction id.
// STUN transaction ids need no structure beyond uniqueness (RFC 5389 §7.2).
func NewTransactionID() TransactionID {
	var tx TransactionID
	if _, err := rand.Read(tx[:]); err != nil {
		// crypto/rand.Read on a fixed-size buffer only fails if the OS
		// entropy source is unavailable, which would make the whole
		// process unusable; panicking here matches Go's own stdlib
		// behavior (see crypto/rand docs) rather than silently returning
		// a zero transaction id that could collide.
		panic("stun: failed to read random transaction id: " + err.Error())
	}
	return tx
}
