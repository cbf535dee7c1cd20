package depot

import (
	"fmt"
	"sync/atomic"
)

// SystemMeta is what the schedule knows about one system: its name, the data
// it touches and when it last ran.
type SystemMeta struct {
	name      string
	access    Access
	exclusive bool
	lastRun   Tick
	buffers   []*Commands
	runs      uint64
	skips     uint64
}

func (m *SystemMeta) Name() string {
	return m.name
}

func (m *SystemMeta) Access() *Access {
	return &m.access
}

func (m *SystemMeta) Exclusive() bool {
	return m.exclusive
}

func (m *SystemMeta) LastRun() Tick {
	return m.lastRun
}

// Runs returns how many times the system ran.
func (m *SystemMeta) Runs() uint64 {
	return m.runs
}

// Skips returns how many times a run condition kept the system from running.
func (m *SystemMeta) Skips() uint64 {
	return m.skips
}

// systemRun is the per-invocation state handed to every parameter.
type systemRun struct {
	storage *Storage
	lastRun Tick
	thisRun Tick
}

// System is a registered unit of per-tick logic.
type System struct {
	meta       SystemMeta
	params     []Param
	conditions []Condition
	run        func() error
	exclusive  func(*Storage) error
	storage    *Storage
}

// init binds the parameters to sto and collects their access. It runs once
// per storage.
func (s *System) init(sto *Storage) error {
	if s.storage == sto {
		return nil
	}
	s.meta.access.reset()
	s.meta.buffers = nil
	for _, p := range s.params {
		if err := p.initParam(sto, &s.meta); err != nil {
			return InvalidParamError{System: s.meta.name, Reason: err.Error()}
		}
	}
	for _, c := range s.conditions {
		if err := c.init(sto, &s.meta); err != nil {
			return InvalidParamError{System: s.meta.name, Reason: fmt.Sprintf("run condition %s: %v", c.name, err)}
		}
	}
	qs := s.meta.access.Queries
	for i := range qs {
		for j := i + 1; j < len(qs); j++ {
			if ids := qs[i].conflicts(&qs[j]); len(ids) > 0 {
				return InvalidParamError{
					System: s.meta.name,
					Reason: fmt.Sprintf("queries %d and %d both access %v and at least one writes it", i, j, componentInfoOf(ids[0]).typ),
				}
			}
		}
	}
	s.meta.lastRun = sto.ChangeTick().RelativeTo(Tick(MaxChangeAge))
	s.storage = sto
	return nil
}

// invoke runs the system once against sto and records its run tick. When a
// run condition fails the system is skipped and its last run stays put.
//
// Direct writes an exclusive system makes are stamped with its run tick, so
// on its next run it does not see them as changed.
func (s *System) invoke(sto *Storage) error {
	thisRun := sto.incrementChangeTick()
	run := systemRun{
		storage: sto,
		lastRun: s.meta.lastRun,
		thisRun: thisRun,
	}
	for _, c := range s.conditions {
		if !c.eval(&run) {
			s.meta.skips++
			return nil
		}
	}
	s.meta.runs++
	defer func() { s.meta.lastRun = thisRun }()
	if s.exclusive != nil {
		sto.pinTick(thisRun)
		defer sto.unpinTick()
		return s.exclusive(sto)
	}
	for _, p := range s.params {
		p.fetchParam(&run)
	}
	return s.run()
}

// SystemConfig is a system plus its ordering constraints, ready to be added
// to a Schedule.
type SystemConfig struct {
	system *System
	before []string
	after  []string
	sets   []string
}

func newSystemConfig(name string, params []Param, run func() error) *SystemConfig {
	return &SystemConfig{
		system: &System{
			meta:   SystemMeta{name: name},
			params: params,
			run:    run,
		},
	}
}

// Before orders the system ahead of every system or set named by labels.
func (c *SystemConfig) Before(labels ...string) *SystemConfig {
	c.before = append(c.before, labels...)
	return c
}

// After orders the system behind every system or set named by labels.
func (c *SystemConfig) After(labels ...string) *SystemConfig {
	c.after = append(c.after, labels...)
	return c
}

// RunIf adds run conditions. The system runs only when every condition
// holds; a condition's data access counts as the system's own.
func (c *SystemConfig) RunIf(conditions ...Condition) *SystemConfig {
	c.system.conditions = append(c.system.conditions, conditions...)
	return c
}

// InSet adds the system to the named sets.
func (c *SystemConfig) InSet(sets ...string) *SystemConfig {
	c.sets = append(c.sets, sets...)
	return c
}

func (c *SystemConfig) Name() string {
	return c.system.meta.name
}

// Meta exposes the system's metadata. Access is populated once the system's
// schedule has been built.
func (c *SystemConfig) Meta() *SystemMeta {
	return &c.system.meta
}

type paramPtr[T any] interface {
	*T
	Param
}

// NewSystem registers a system without parameters.
func NewSystem(name string, fn func() error) *SystemConfig {
	return newSystemConfig(name, nil, fn)
}

// NewSystem1 registers fn as a system. The parameter's type declares what
// the system reads and writes:
//
//	move := depot.NewSystem1("move", func(q *depot.Query2[depot.Write[Position], depot.Read[Velocity]]) error {
//		for cur := q.Iter(); cur.Next(); {
//			pos := depot.GetMut[Position](cur)
//			vel := depot.Get[Velocity](cur)
//			pos.X += vel.X
//		}
//		return nil
//	})
func NewSystem1[P1 any, PP1 paramPtr[P1]](name string, fn func(PP1) error) *SystemConfig {
	p1 := PP1(new(P1))
	return newSystemConfig(name, []Param{p1}, func() error { return fn(p1) })
}

func NewSystem2[P1, P2 any, PP1 paramPtr[P1], PP2 paramPtr[P2]](name string, fn func(PP1, PP2) error) *SystemConfig {
	p1, p2 := PP1(new(P1)), PP2(new(P2))
	return newSystemConfig(name, []Param{p1, p2}, func() error { return fn(p1, p2) })
}

func NewSystem3[P1, P2, P3 any, PP1 paramPtr[P1], PP2 paramPtr[P2], PP3 paramPtr[P3]](name string, fn func(PP1, PP2, PP3) error) *SystemConfig {
	p1, p2, p3 := PP1(new(P1)), PP2(new(P2)), PP3(new(P3))
	return newSystemConfig(name, []Param{p1, p2, p3}, func() error { return fn(p1, p2, p3) })
}

func NewSystem4[P1, P2, P3, P4 any, PP1 paramPtr[P1], PP2 paramPtr[P2], PP3 paramPtr[P3], PP4 paramPtr[P4]](name string, fn func(PP1, PP2, PP3, PP4) error) *SystemConfig {
	p1, p2, p3, p4 := PP1(new(P1)), PP2(new(P2)), PP3(new(P3)), PP4(new(P4))
	return newSystemConfig(name, []Param{p1, p2, p3, p4}, func() error { return fn(p1, p2, p3, p4) })
}

func NewSystem5[P1, P2, P3, P4, P5 any, PP1 paramPtr[P1], PP2 paramPtr[P2], PP3 paramPtr[P3], PP4 paramPtr[P4], PP5 paramPtr[P5]](name string, fn func(PP1, PP2, PP3, PP4, PP5) error) *SystemConfig {
	p1, p2, p3, p4, p5 := PP1(new(P1)), PP2(new(P2)), PP3(new(P3)), PP4(new(P4)), PP5(new(P5))
	return newSystemConfig(name, []Param{p1, p2, p3, p4, p5}, func() error { return fn(p1, p2, p3, p4, p5) })
}

// NewExclusiveSystem registers fn as a system that needs the whole storage.
// Nothing else runs while it does, and pending command buffers are applied
// right before it starts.
func NewExclusiveSystem(name string, fn func(*Storage) error) *SystemConfig {
	c := newSystemConfig(name, nil, nil)
	c.system.meta.exclusive = true
	c.system.exclusive = fn
	return c
}

var applyDeferredCount atomic.Uint32

// ApplyDeferred returns an exclusive system that does nothing itself. Ordering
// it between two systems makes the first one's commands visible to the second
// within the same pass.
func ApplyDeferred() *SystemConfig {
	n := applyDeferredCount.Add(1)
	return NewExclusiveSystem(fmt.Sprintf("apply_deferred#%d", n), func(*Storage) error { return nil })
}
