// Package streams holds the per-SSRC StreamRx/StreamTx pipelines for a
// session and answers the aggregate questions the session driver's
// poll_output loop needs: when is the next regular RTCP report due, is any
// receiver owed a NACK, is anything actually flowing. Structurally a direct
// adaptation of str0m's Streams (rx/tx maps plus regular_feedback_at/
// need_nack helpers), using Go maps in place of its HashMap<Mid, ...>.
package streams

import (
	"time"

	"github.com/sansrtc/core/pkg/stream"
)

// Registry owns every receive and transmit pipeline for a session.
type Registry struct {
	rx map[uint32]*stream.Rx
	tx map[uint32]*stream.Tx
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rx: make(map[uint32]*stream.Rx),
		tx: make(map[uint32]*stream.Tx),
	}
}

// ExpectRx registers (or returns the existing) receive pipeline for ssrc.
func (r *Registry) ExpectRx(ssrc uint32, clockRate uint32, audio bool) *stream.Rx {
	if s, ok := r.rx[ssrc]; ok {
		return s
	}
	s := stream.NewRx(ssrc, clockRate, audio)
	r.rx[ssrc] = s
	return s
}

// Rx looks up a receive pipeline by SSRC.
func (r *Registry) Rx(ssrc uint32) (*stream.Rx, bool) {
	s, ok := r.rx[ssrc]
	return s, ok
}

// DeclareTx registers (or returns the existing) transmit pipeline for ssrc.
func (r *Registry) DeclareTx(ssrc uint32, clockRate uint32, audio bool) *stream.Tx {
	if s, ok := r.tx[ssrc]; ok {
		return s
	}
	s := stream.NewTx(ssrc, clockRate, audio)
	r.tx[ssrc] = s
	return s
}

// Tx looks up a transmit pipeline by SSRC.
func (r *Registry) Tx(ssrc uint32) (*stream.Tx, bool) {
	s, ok := r.tx[ssrc]
	return s, ok
}

// RemoveRx drops a receive pipeline, e.g. when its m-line is disabled by a
// renegotiation.
func (r *Registry) RemoveRx(ssrc uint32) {
	delete(r.rx, ssrc)
}

// RemoveTx drops a transmit pipeline.
func (r *Registry) RemoveTx(ssrc uint32) {
	delete(r.tx, ssrc)
}

// RegularFeedbackAt returns the earliest feedback_at across every contained
// stream, or ok=false if there are no streams at all (spec §4.5).
func (r *Registry) RegularFeedbackAt() (deadline time.Time, ok bool) {
	for _, s := range r.rx {
		if !ok || s.FeedbackAt().Before(deadline) {
			deadline, ok = s.FeedbackAt(), true
		}
	}
	for _, s := range r.tx {
		if !ok || s.FeedbackAt().Before(deadline) {
			deadline, ok = s.FeedbackAt(), true
		}
	}
	return deadline, ok
}

// NeedNack reports whether any receive pipeline currently has a gap worth
// NACKing, ORed across every receiver (spec §4.5).
func (r *Registry) NeedNack() bool {
	for _, s := range r.rx {
		if s.HasNack() {
			return true
		}
	}
	return false
}

// NextNackDeadline returns the earliest NACK deadline across every receiver.
func (r *Registry) NextNackDeadline() (deadline time.Time, ok bool) {
	for _, s := range r.rx {
		d, has := s.NextNackDeadline()
		if !has {
			continue
		}
		if !ok || d.Before(deadline) {
			deadline, ok = d, true
		}
	}
	return deadline, ok
}

// IsReceiving reports whether at least one receive pipeline is registered.
func (r *Registry) IsReceiving() bool {
	return len(r.rx) > 0
}

// RxStreams returns every receive pipeline, for callers that need to poll
// BuildReportBlock/DueNacks on each (e.g. the session driver assembling a
// compound RTCP packet).
func (r *Registry) RxStreams() map[uint32]*stream.Rx {
	return r.rx
}

// TxStreams returns every transmit pipeline.
func (r *Registry) TxStreams() map[uint32]*stream.Tx {
	return r.tx
}
