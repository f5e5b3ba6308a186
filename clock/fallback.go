package clock

import "time"

var epoch = time.Now()

// fallbackMicros uses the runtime's monotonic reading carried by time.Time.
func fallbackMicros() uint64 {
	return uint64(time.Since(epoch) / time.Microsecond)
}
