package depot

import (
	"math"
	"testing"
)

func TestTickIsNewerThan(t *testing.T) {
	const top = math.MaxUint32

	tests := []struct {
		name    string
		tick    Tick
		lastRun Tick
		thisRun Tick
		want    bool
	}{
		{"Written after last run", 5, 3, 10, true},
		{"Written at last run", 3, 3, 10, false},
		{"Written before last run", 2, 3, 10, false},
		{"Written across wraparound", 2, top - 1, 5, true},
		{"Last run across wraparound", top - 4, 1, 3, false},
		{"Both before wraparound", top - 2, top - 5, 4, true},
		{"Ancient tick clamps to max age", 10, 20, 20 + Tick(MaxChangeAge) + 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tick.IsNewerThan(tt.lastRun, tt.thisRun); got != tt.want {
				t.Errorf("Tick(%d).IsNewerThan(%d, %d) = %v, want %v", tt.tick, tt.lastRun, tt.thisRun, got, tt.want)
			}
		})
	}
}

func TestTickCheck(t *testing.T) {
	now := Tick(3 * CheckTickThreshold)

	// A recent tick is left alone
	recent := now - 10
	if recent.checkTick(now) {
		t.Errorf("checkTick rewrote recent tick")
	}

	// An old one is pulled forward to exactly MaxChangeAge behind now
	old := now - Tick(MaxChangeAge) - 50
	if !old.checkTick(now) {
		t.Fatalf("checkTick left old tick alone")
	}
	if age := uint32(now.RelativeTo(old)); age != MaxChangeAge {
		t.Errorf("Age after check = %d, want %d", age, MaxChangeAge)
	}
}

func TestStorageCheckChangeTicks(t *testing.T) {
	sto := Factory.NewStorage()
	e, err := sto.Spawn(Position{})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	// Below the threshold nothing is scanned
	if sto.CheckChangeTicks() {
		t.Errorf("CheckChangeTicks ran before threshold")
	}

	// Age the clock far enough that the stored tick falls out of range
	sto.changeTick.Store(uint32(sto.ChangeTick()) + MaxChangeAge + 1000)
	if !sto.CheckChangeTicks() {
		t.Fatalf("CheckChangeTicks did not run after threshold")
	}

	ticks, ok := TicksOf[Position](sto, e)
	if !ok {
		t.Fatalf("TicksOf() found nothing")
	}
	now := sto.ChangeTick()
	if age := uint32(now.RelativeTo(ticks.Added)); age != MaxChangeAge {
		t.Errorf("Added age = %d, want %d", age, MaxChangeAge)
	}

	// Right after a scan the next one is not due yet
	if sto.CheckChangeTicks() {
		t.Errorf("CheckChangeTicks ran twice in a row")
	}
}
