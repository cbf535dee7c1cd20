package depot

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/TheBitDrifter/bark"
	"github.com/google/uuid"
)

// ScheduleState is the phase a schedule is in.
type ScheduleState int32

const (
	StateIdle ScheduleState = iota
	StatePlanning
	StateExecuting
	StateSyncing
)

func (s ScheduleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateExecuting:
		return "executing"
	case StateSyncing:
		return "syncing"
	}
	return fmt.Sprintf("ScheduleState(%d)", int32(s))
}

// SetConfig orders a named group of systems. Ordering a set orders each of
// its members.
type SetConfig struct {
	name   string
	before []string
	after  []string
}

func (c *SetConfig) Before(labels ...string) *SetConfig {
	c.before = append(c.before, labels...)
	return c
}

func (c *SetConfig) After(labels ...string) *SetConfig {
	c.after = append(c.after, labels...)
	return c
}

func (c *SetConfig) Name() string {
	return c.name
}

// labelTarget is what a label resolves to: one system or a set.
type labelTarget struct {
	system int
	set    int
}

// Schedule runs a group of systems once per call to RunOnce, in parallel
// where their declared access allows.
type Schedule struct {
	state   atomic.Int32
	systems []*SystemConfig
	sets    []*SetConfig
	workers int

	labels     Cache[labelTarget]
	setMembers [][]int
	plan       *plan
	storage    *Storage
	dirty      bool
}

func newSchedule() *Schedule {
	return &Schedule{
		workers: Config.Workers(),
		labels:  FactoryNewCache[labelTarget](Config.MaxSystems()),
		dirty:   true,
	}
}

// State returns the phase the schedule is currently in.
func (s *Schedule) State() ScheduleState {
	return ScheduleState(s.state.Load())
}

// SetWorkers sets the size of the worker pool used by RunOnce.
func (s *Schedule) SetWorkers(n int) *Schedule {
	s.workers = max(n, 1)
	return s
}

// AddSystems appends systems in registration order. Registration order breaks
// ties between ready systems and decides the order command buffers are
// applied in.
func (s *Schedule) AddSystems(configs ...*SystemConfig) *Schedule {
	s.systems = append(s.systems, configs...)
	s.dirty = true
	return s
}

// ConfigureSet returns the set named name, creating it if needed.
func (s *Schedule) ConfigureSet(name string) *SetConfig {
	for _, set := range s.sets {
		if set.name == name {
			return set
		}
	}
	set := &SetConfig{name: name}
	s.sets = append(s.sets, set)
	s.dirty = true
	return set
}

// Systems returns the registered systems in registration order.
func (s *Schedule) Systems() []*SystemConfig {
	return slices.Clone(s.systems)
}

// Build plans the schedule against sto. It fails when a label is unknown or
// duplicated, when ordering constraints form a cycle, when a system's own
// parameters conflict, or when two unordered systems have conflicting access.
// Planning failures are returned as a BuildError wrapping the cause.
func (s *Schedule) Build(sto *Storage) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StatePlanning)) {
		return fmt.Errorf("cannot build schedule while %v", s.State())
	}
	defer s.state.Store(int32(StateIdle))

	if err := s.build(sto); err != nil {
		traced := newBuildError(err)
		Config.Logger().Error("schedule build failed",
			bark.KeyOperation, "build",
			bark.KeyError, err.Error(),
			"trace", traced.Frames(),
		)
		return traced
	}
	return nil
}

func (s *Schedule) build(sto *Storage) error {
	s.plan = nil
	if err := s.indexLabels(); err != nil {
		return err
	}
	systems := make([]*System, len(s.systems))
	for i, cfg := range s.systems {
		if err := cfg.system.init(sto); err != nil {
			return err
		}
		systems[i] = cfg.system
	}
	edges, err := s.orderingEdges()
	if err != nil {
		return err
	}
	p, err := buildPlan(systems, edges)
	if err != nil {
		return err
	}
	s.plan = p
	s.storage = sto
	s.dirty = false
	Config.debug("schedule planned",
		bark.KeyOperation, "build",
		"systems", len(systems),
		"edges", len(edges),
	)
	return nil
}

// indexLabels registers every system name and set name. Sets mentioned only
// through InSet are created on the way.
func (s *Schedule) indexLabels() error {
	s.labels.Clear()
	for i, cfg := range s.systems {
		if _, err := s.labels.Register(cfg.Name(), labelTarget{system: i, set: -1}); err != nil {
			return err
		}
	}
	for _, cfg := range s.systems {
		for _, name := range cfg.sets {
			s.ConfigureSet(name)
		}
	}
	s.setMembers = make([][]int, len(s.sets))
	for i, set := range s.sets {
		if _, err := s.labels.Register(set.name, labelTarget{system: -1, set: i}); err != nil {
			return err
		}
	}
	for i, cfg := range s.systems {
		for _, name := range cfg.sets {
			idx, _ := s.labels.GetIndex(name)
			set := s.labels.GetItem(idx).set
			if !slices.Contains(s.setMembers[set], i) {
				s.setMembers[set] = append(s.setMembers[set], i)
			}
		}
	}
	return nil
}

// resolve returns the systems a label stands for.
func (s *Schedule) resolve(owner, label string) ([]int, error) {
	idx, ok := s.labels.GetIndex(label)
	if !ok {
		return nil, UnknownLabelError{System: owner, Label: label}
	}
	target := s.labels.GetItem(idx)
	if target.system >= 0 {
		return []int{target.system}, nil
	}
	return s.setMembers[target.set], nil
}

func (s *Schedule) orderingEdges() ([][2]int, error) {
	var edges [][2]int
	link := func(owner string, from []int, labels []string, forward bool) error {
		for _, label := range labels {
			to, err := s.resolve(owner, label)
			if err != nil {
				return err
			}
			for _, a := range from {
				for _, b := range to {
					if forward {
						edges = append(edges, [2]int{a, b})
					} else {
						edges = append(edges, [2]int{b, a})
					}
				}
			}
		}
		return nil
	}
	for i, cfg := range s.systems {
		if err := link(cfg.Name(), []int{i}, cfg.before, true); err != nil {
			return nil, err
		}
		if err := link(cfg.Name(), []int{i}, cfg.after, false); err != nil {
			return nil, err
		}
	}
	for i, set := range s.sets {
		if err := link(set.name, s.setMembers[i], set.before, true); err != nil {
			return nil, err
		}
		if err := link(set.name, s.setMembers[i], set.after, false); err != nil {
			return nil, err
		}
	}
	return edges, nil
}

// Order returns the system names in the order a single worker would run
// them. It is empty until the schedule has been built.
func (s *Schedule) Order() []string {
	if s.plan == nil {
		return nil
	}
	names := make([]string, len(s.plan.order))
	for i, v := range s.plan.order {
		names[i] = s.systems[v].Name()
	}
	return names
}

// RunOnce drives one Planning -> Executing -> Syncing pass over sto. Planning
// only happens when the schedule changed or runs against a new storage.
//
// A failing system does not stop the others. Its commands are discarded and
// its error is reported in the returned *RunError once the pass is over.
func (s *Schedule) RunOnce(sto *Storage) error {
	if s.dirty || s.storage != sto {
		if err := s.Build(sto); err != nil {
			return err
		}
	}
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateExecuting)) {
		return fmt.Errorf("cannot run schedule while %v", s.State())
	}
	defer s.state.Store(int32(StateIdle))

	runID := uuid.New()
	start := time.Now()
	sto.flushReserved()
	sto.lastChangeTick = sto.incrementChangeTick()

	ex := newExecution(s, sto)
	sto.Lock()
	ex.run()
	sto.Unlock()

	s.state.Store(int32(StateSyncing))
	ex.applyBuffers()
	s.sync(sto)

	errs := ex.errors()
	Config.debug("schedule pass finished",
		bark.KeyOperation, "run",
		"run", runID.String(),
		"failures", len(errs),
		bark.KeyDuration, time.Since(start).Milliseconds(),
	)
	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		Config.Logger().Error("system failed",
			bark.KeyOperation, "run",
			"run", runID.String(),
			bark.KeyError, err.Error(),
		)
	}
	return &RunError{RunID: runID, Errors: errs}
}

// sync advances the clock after buffers were applied, swaps event buffers and
// rebiases stored ticks when the periodic check is due.
func (s *Schedule) sync(sto *Storage) {
	sto.UpdateEvents()
	sto.incrementChangeTick()
	if !sto.CheckChangeTicks() {
		return
	}
	now := sto.ChangeTick()
	for _, cfg := range s.systems {
		cfg.system.meta.lastRun.checkTick(now)
	}
}
