package depot

import (
	"runtime/debug"
	"slices"

	"golang.org/x/sync/errgroup"
)

type result struct {
	node int
	err  error
}

// execution is the state of one Executing phase. Only the coordinating
// goroutine touches it; workers receive node indices and send back results.
type execution struct {
	schedule *Schedule
	storage  *Storage
	systems  []*System

	indegree []int
	ready    []int
	running  int
	done     []bool
	applied  []bool
	errs     [][]error
}

func newExecution(s *Schedule, sto *Storage) *execution {
	n := len(s.systems)
	ex := &execution{
		schedule: s,
		storage:  sto,
		systems:  make([]*System, n),
		indegree: slices.Clone(s.plan.indegree),
		done:     make([]bool, n),
		applied:  make([]bool, n),
		errs:     make([][]error, n),
	}
	for i, cfg := range s.systems {
		ex.systems[i] = cfg.system
	}
	for v, d := range ex.indegree {
		if d == 0 {
			ex.ready = append(ex.ready, v)
		}
	}
	return ex
}

// run drains the plan. Non-exclusive systems go to a fixed pool of workers;
// an exclusive system runs on the coordinator once nothing else is running,
// after pending command buffers have been applied.
func (ex *execution) run() {
	n := len(ex.systems)
	jobs := make(chan int, n)
	results := make(chan result, n)

	var g errgroup.Group
	defer func() {
		close(jobs)
		g.Wait()
	}()
	for range min(ex.schedule.workers, max(n, 1)) {
		g.Go(func() error {
			for idx := range jobs {
				results <- result{node: idx, err: ex.invoke(idx)}
			}
			return nil
		})
	}

	completed := 0
	barrier := -1
	for completed < n {
		slices.Sort(ex.ready)
		for barrier < 0 && len(ex.ready) > 0 {
			idx := ex.ready[0]
			ex.ready = ex.ready[1:]
			if ex.systems[idx].meta.exclusive {
				barrier = idx
				break
			}
			ex.running++
			jobs <- idx
		}

		if barrier >= 0 && ex.running == 0 {
			ex.storage.Unlock()
			ex.applyBuffers()
			err := ex.invoke(barrier)
			ex.storage.Lock()
			ex.applied[barrier] = true
			ex.complete(barrier, err)
			barrier = -1
			completed++
			continue
		}
		if ex.running == 0 {
			break
		}

		r := <-results
		ex.running--
		ex.complete(r.node, r.err)
		completed++
	}
}

func (ex *execution) complete(idx int, err error) {
	ex.done[idx] = true
	if err != nil {
		ex.errs[idx] = append(ex.errs[idx], err)
	}
	for _, v := range ex.schedule.plan.succ[idx] {
		ex.indegree[v]--
		if ex.indegree[v] == 0 {
			ex.ready = append(ex.ready, v)
		}
	}
}

// invoke runs one system and converts a failure or panic into a SystemError.
func (ex *execution) invoke(idx int) (err error) {
	sys := ex.systems[idx]
	defer func() {
		if r := recover(); r != nil {
			err = SystemError{
				System: sys.meta.name,
				Phase:  "run",
				Err:    PanicError{Value: r, Stack: debug.Stack()},
			}
		}
	}()
	if err := sys.invoke(ex.storage); err != nil {
		return SystemError{System: sys.meta.name, Phase: "run", Err: err}
	}
	return nil
}

// applyBuffers applies the command buffers of finished systems in
// registration order. Buffers of failed systems are discarded.
func (ex *execution) applyBuffers() {
	for i, sys := range ex.systems {
		if !ex.done[i] || ex.applied[i] {
			continue
		}
		ex.applied[i] = true
		failed := len(ex.errs[i]) > 0
		for _, buf := range sys.meta.buffers {
			if failed {
				buf.discard()
				continue
			}
			if err := applyBuffer(buf); err != nil {
				ex.errs[i] = append(ex.errs[i], SystemError{System: sys.meta.name, Phase: "apply", Err: err})
			}
		}
	}
}

// applyBuffer applies buf, turning a panic in a queued command into an error.
// Commands queued after the one that panicked are discarded.
func applyBuffer(buf *Commands) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf.discard()
			err = PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return buf.Apply()
}

// errors flattens the collected failures in registration order.
func (ex *execution) errors() []error {
	var out []error
	for _, errs := range ex.errs {
		out = append(out, errs...)
	}
	return out
}
