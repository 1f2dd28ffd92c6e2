package scope

import "time"

// LineState is one instantaneous reading of the four probe input lines.
type LineState struct {
	Ch1Pos bool
	Ch1Neg bool
	Ch2Pos bool
	Ch2Neg bool
}

// LineSource is the hardware capability the session samples from. Open
// claims the hardware for the session and Close releases it; ReadLines
// returns the instantaneous line levels with no buffering. A failed read
// mid-session is fatal to the session (see IoFault).
type LineSource interface {
	Open() error
	ReadLines() (LineState, error)
	Close() error
}

// Clock is a monotonic time source measured in seconds.
type Clock interface {
	Now() float64
}

type monotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns a Clock counting seconds since its creation.
func NewMonotonicClock() Clock {
	return &monotonicClock{start: time.Now()}
}

func (c *monotonicClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

// Differential converts one positive/negative line pair into the tri-state
// value pos minus neg, one of -1, 0, 1.
func Differential(pos, neg bool) int8 {
	var p, n int8
	if pos {
		p = 1
	}
	if neg {
		n = 1
	}
	return p - n
}
