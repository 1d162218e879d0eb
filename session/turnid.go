package session

import (
	"strconv"
	"time"
)

// turnIDs yields strictly increasing decimal ids based on wall-clock
// milliseconds. Two ids requested in the same millisecond differ by the
// counter tie-break. Callers serialise access.
type turnIDs struct {
	last int64
}

func (g *turnIDs) next(now time.Time) string {
	n := now.UnixMilli()
	if n <= g.last {
		n = g.last + 1
	}
	g.last = n
	return strconv.FormatInt(n, 10)
}
