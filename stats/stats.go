package stats

import "sync/atomic"

var (
	// Accepted is the total number of accepted connections.
	Accepted atomic.Int64
	// Open is the number of currently open connections.
	Open atomic.Int64
	// Exchanges is the total number of finished exchanges.
	Exchanges atomic.Int64
	// BadRequests is the total number of requests rejected as malformed.
	BadRequests atomic.Int64
	// Spooled is the total number of request bodies stored in temporary files.
	Spooled atomic.Int64
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Accepted    int64 `json:"accepted"`
	Open        int64 `json:"open"`
	Exchanges   int64 `json:"exchanges"`
	BadRequests int64 `json:"bad_requests"`
	Spooled     int64 `json:"spooled"`
}

func Load() Snapshot {
	return Snapshot{
		Accepted:    Accepted.Load(),
		Open:        Open.Load(),
		Exchanges:   Exchanges.Load(),
		BadRequests: BadRequests.Load(),
		Spooled:     Spooled.Load(),
	}
}
