package gateway

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/irsalhamdi/course-checkout/random"
)

var lastNonce atomic.Int64

// NewNonce returns a strictly increasing nanosecond timestamp followed by a
// random suffix.
func NewNonce() string {
	for {
		last := lastNonce.Load()
		now := time.Now().UnixNano()
		if now <= last {
			now = last + 1
		}
		if lastNonce.CompareAndSwap(last, now) {
			return strconv.FormatInt(now, 10) + random.String(8, random.Digits)
		}
	}
}
