package distribute

import "sync/atomic"

// Progress tracks run counters across all workers. All fields are
// updated atomically; the status server reads snapshots while the run
// is in flight.
type Progress struct {
	total           atomic.Int64
	processed       atomic.Int64
	succeeded       atomic.Int64
	transientFailed atomic.Int64
	permanentFailed atomic.Int64
	samples         atomic.Int64
	shards          atomic.Int64
}

// Snapshot is a point-in-time copy of the run counters.
type Snapshot struct {
	Total           int64 `json:"total"`
	Processed       int64 `json:"processed"`
	Succeeded       int64 `json:"succeeded"`
	TransientFailed int64 `json:"transient_failed"`
	PermanentFailed int64 `json:"permanent_failed"`
	Samples         int64 `json:"samples"`
	Shards          int64 `json:"shards"`
}

// Snapshot returns the current counter values.
func (p *Progress) Snapshot() Snapshot {
	return Snapshot{
		Total:           p.total.Load(),
		Processed:       p.processed.Load(),
		Succeeded:       p.succeeded.Load(),
		TransientFailed: p.transientFailed.Load(),
		PermanentFailed: p.permanentFailed.Load(),
		Samples:         p.samples.Load(),
		Shards:          p.shards.Load(),
	}
}
