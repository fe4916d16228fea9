package timer

import (
	"sync/atomic"
	"time"
)

// Resolution is how often the clock is refreshed. Timestamps of access log records and
// request receipt don't need to be more precise.
const Resolution = 500 * time.Millisecond

var millis = new(atomic.Int64)

func init() {
	millis.Store(time.Now().UnixMilli())

	go func() {
		for {
			time.Sleep(Resolution)
			millis.Store(time.Now().UnixMilli())
		}
	}()
}

// Now returns the current time, lagging behind by at most Resolution.
func Now() time.Time {
	return time.UnixMilli(millis.Load())
}

