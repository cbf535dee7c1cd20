package depot

import "math"

const (
	// CheckTickThreshold is how far the change clock may advance before stored
	// ticks are rebiased by CheckChangeTicks.
	CheckTickThreshold uint32 = 518_400_000

	// MaxChangeAge is the oldest relative age a stored tick may have. Ticks older
	// than this are clamped during CheckChangeTicks.
	MaxChangeAge uint32 = math.MaxUint32 - (2*CheckTickThreshold - 1)
)

// Tick is a wrapping change-clock value.
type Tick uint32

// IsNewerThan reports whether t happened after lastRun, using thisRun as the
// reference point so the comparison stays valid across one wraparound.
func (t Tick) IsNewerThan(lastRun, thisRun Tick) bool {
	sinceInsert := min(uint32(thisRun.RelativeTo(t)), MaxChangeAge)
	sinceSystem := min(uint32(thisRun.RelativeTo(lastRun)), MaxChangeAge)
	return sinceSystem > sinceInsert
}

// RelativeTo returns t-other with wraparound.
func (t Tick) RelativeTo(other Tick) Tick {
	return t - other
}

// checkTick clamps t so that its age relative to now never exceeds MaxChangeAge.
// Returns true if t was rewritten.
func (t *Tick) checkTick(now Tick) bool {
	age := uint32(now.RelativeTo(*t))
	if age > MaxChangeAge {
		*t = now.RelativeTo(Tick(MaxChangeAge))
		return true
	}
	return false
}

// ComponentTicks records when a value was inserted and when it was last written.
type ComponentTicks struct {
	Added   Tick
	Changed Tick
}

func newComponentTicks(tick Tick) ComponentTicks {
	return ComponentTicks{Added: tick, Changed: tick}
}

// IsAdded reports whether the value was inserted after lastRun.
func (ct ComponentTicks) IsAdded(lastRun, thisRun Tick) bool {
	return ct.Added.IsNewerThan(lastRun, thisRun)
}

// IsChanged reports whether the value was inserted or written after lastRun.
func (ct ComponentTicks) IsChanged(lastRun, thisRun Tick) bool {
	return ct.Changed.IsNewerThan(lastRun, thisRun)
}

func (ct *ComponentTicks) checkTicks(now Tick) {
	ct.Added.checkTick(now)
	ct.Changed.checkTick(now)
}
