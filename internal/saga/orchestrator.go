// Package saga implements the cross-domain workflow engine: multi-step
// sagas executed under a single wall-clock budget, with reverse-order
// best-effort compensation of completed steps when a later step fails.
//
// Execution is synchronous to the caller and purely in-process; saga state
// does not survive a crash. A step that exceeds the remaining time budget
// is abandoned, not forcibly cancelled, though handlers receive a context
// carrying the saga deadline and may stop cooperatively.
package saga

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "trustchecker.io/trustchecker/internal/pkg/errors"
	"trustchecker.io/trustchecker/internal/pkg/logger"
	"trustchecker.io/trustchecker/internal/pkg/worker"
)

// StepContext is the per-invocation context handed to step handlers.
type StepContext struct {
	SagaID         string
	Context        map[string]any
	StepResults    map[string]any
	IsCompensation bool
}

// Handler executes one saga step action. The same signature serves forward
// actions and compensations; compensations see IsCompensation set.
type Handler func(ctx context.Context, triggerData map[string]any, stepCtx StepContext) (any, error)

// handlerKey identifies a registered action within a domain.
type handlerKey struct {
	domain string
	action string
}

func (k handlerKey) String() string { return k.domain + ":" + k.action }

// Stats holds orchestrator counters for diagnostics.
type Stats struct {
	Started            int64    `json:"started"`
	Completed          int64    `json:"completed"`
	Failed             int64    `json:"failed"`
	Compensated        int64    `json:"compensated"`
	TimedOut           int64    `json:"timedOut"`
	Active             int      `json:"active"`
	Definitions        []string `json:"definitions"`
	RegisteredHandlers []string `json:"registeredHandlers"`
}

// minStepBudget is the floor applied to a step's remaining time budget so
// a saga on the edge of its deadline still gives the step a brief chance.
const minStepBudget = 100 * time.Millisecond

// defaultArchiveSize bounds the ring of recently finished sagas.
const defaultArchiveSize = 100

// Orchestrator runs saga instances and keeps a bounded archive of
// finished ones for diagnostics.
type Orchestrator struct {
	pool *worker.Pool

	mu          sync.Mutex
	definitions map[string]Definition
	handlers    map[handlerKey]Handler
	active      map[string]*instance
	archive     []Snapshot
	archiveCap  int

	stats struct {
		started     int64
		completed   int64
		failed      int64
		compensated int64
		timedOut    int64
	}
}

// New creates an orchestrator with the builtin saga definitions
// registered. Step handlers are wired separately at startup.
func New(pool *worker.Pool, archiveSize int) *Orchestrator {
	if archiveSize <= 0 {
		archiveSize = defaultArchiveSize
	}
	return &Orchestrator{
		pool:        pool,
		definitions: builtinDefinitions(),
		handlers:    make(map[handlerKey]Handler),
		active:      make(map[string]*instance),
		archiveCap:  archiveSize,
	}
}

// RegisterDefinition adds or replaces a saga definition.
func (o *Orchestrator) RegisterDefinition(key string, def Definition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.definitions[key] = def
}

// RegisterHandler wires a handler for a domain action. The same lookup
// serves forward steps and compensations.
func (o *Orchestrator) RegisterHandler(domain, action string, h Handler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers[handlerKey{domain: domain, action: action}] = h
}

func (o *Orchestrator) handler(domain, action string) (Handler, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.handlers[handlerKey{domain: domain, action: action}]
	return h, ok
}

// Start runs a saga to a terminal state and returns its final snapshot.
// Business failure is reported through the snapshot's State and Error
// fields, not through the returned error; the error is reserved for
// wiring problems such as an unknown saga key.
func (o *Orchestrator) Start(ctx context.Context, sagaKey string, triggerData, sagaCtx map[string]any) (Snapshot, error) {
	o.mu.Lock()
	def, ok := o.definitions[sagaKey]
	o.mu.Unlock()
	if !ok {
		return Snapshot{}, apperrors.Newf(apperrors.CodeUnknownSaga, "unknown saga: %s", sagaKey)
	}

	in := newInstance(def, triggerData, sagaCtx)

	o.mu.Lock()
	o.active[in.id] = in
	o.stats.started++
	o.mu.Unlock()

	in.addLog("saga started with trigger: " + def.TriggerEvent)

	if err := in.transition(StateRunning); err != nil {
		// Unreachable for a fresh instance; surface rather than mask.
		o.archiveInstance(in)
		return in.snapshot(), err
	}

	outcome := o.executeSteps(ctx, in)
	switch {
	case outcome.timedOut:
		o.mu.Lock()
		o.stats.timedOut++
		o.mu.Unlock()
	case outcome.err != nil:
		in.setError(outcome.err.Error())
		in.addLog("saga failed: " + outcome.err.Error())
		if len(in.snapshotCompletedSteps()) > 0 {
			o.compensate(ctx, in)
		} else {
			if err := in.transition(StateFailed); err != nil {
				in.forceState(StateFailed)
			}
			o.mu.Lock()
			o.stats.failed++
			o.mu.Unlock()
		}
	default:
		o.mu.Lock()
		o.stats.completed++
		o.mu.Unlock()
	}

	o.archiveInstance(in)
	return in.snapshot(), nil
}

// stepOutcome is the result of the forward pass: success, a step error
// that triggers compensation, or a timeout that terminates without it.
type stepOutcome struct {
	err      error
	timedOut bool
}

// executeSteps runs the forward pass sequentially. Any form of deadline
// exhaustion, whether noticed before a step or by losing the budget race
// during one, terminates the saga as TIMED_OUT with no compensation.
func (o *Orchestrator) executeSteps(ctx context.Context, in *instance) stepOutcome {
	deadline := in.startedAt.Add(in.timeout)

	for i, step := range in.definition.Steps {
		in.setStep(i)

		if in.timedOut() {
			if err := in.transition(StateTimedOut); err != nil {
				in.forceState(StateTimedOut)
			}
			in.addLog(fmt.Sprintf("saga timed out at step %d (%s)", i, step.Name))
			return stepOutcome{timedOut: true}
		}

		if err := in.transition(StateStepPending); err != nil {
			return stepOutcome{err: err}
		}
		in.addLog(fmt.Sprintf("executing step %d: %s (%s:%s)", i, step.Name, step.Domain, step.Action))

		h, ok := o.handler(step.Domain, step.Action)
		if !ok {
			// Missing handlers pass through on purpose so partially wired
			// deployments keep flowing.
			in.addLog("no handler for " + step.Domain + ":" + step.Action + ", skipping (pass-through)")
			logger.Warn("saga step has no handler, passing through",
				zap.String("saga_id", in.id),
				zap.String("step", step.Name),
				zap.String("handler", step.Domain+":"+step.Action),
			)
			if err := in.transition(StateStepComplete); err != nil {
				return stepOutcome{err: err}
			}
			in.recordStepResult(step.Name, nil)
			continue
		}

		result, err, lost := o.raceStep(ctx, in, h, deadline)
		if lost {
			if terr := in.transition(StateTimedOut); terr != nil {
				in.forceState(StateTimedOut)
			}
			in.addLog(fmt.Sprintf("step %d timed out: %s", i, step.Name))
			return stepOutcome{timedOut: true}
		}
		if err != nil {
			in.addLog(fmt.Sprintf("step %d failed: %s, %s", i, step.Name, err.Error()))
			return stepOutcome{err: apperrors.Wrap(err, apperrors.CodeSagaStepFailed, "step "+step.Name)}
		}

		if terr := in.transition(StateStepComplete); terr != nil {
			return stepOutcome{err: terr}
		}
		in.recordStepResult(step.Name, result)
		in.addLog(fmt.Sprintf("step %d completed: %s", i, step.Name))
	}

	if err := in.transition(StateCompleted); err != nil {
		return stepOutcome{err: err}
	}
	in.addLog("saga completed successfully")
	return stepOutcome{}
}

// raceStep runs the handler against the saga's remaining time budget. A
// handler that loses the race keeps running on its pool worker; the saga
// moves on. The handler context carries the saga deadline so well-behaved
// handlers can stop early.
func (o *Orchestrator) raceStep(ctx context.Context, in *instance, h Handler, deadline time.Time) (result any, err error, lost bool) {
	budget := time.Until(deadline)
	if budget < minStepBudget {
		budget = minStepBudget
	}

	stepCtx, cancel := context.WithDeadline(ctx, deadline)
	sc := StepContext{
		SagaID:      in.id,
		Context:     in.context,
		StepResults: in.snapshotStepResults(),
	}

	type stepResult struct {
		value any
		err   error
	}
	done := make(chan stepResult, 1)

	submitErr := o.pool.Submit(ctx, func(taskCtx context.Context) {
		defer cancel()
		v, herr := h(stepCtx, in.triggerData, sc)
		done <- stepResult{value: v, err: herr}
	})
	if submitErr != nil {
		cancel()
		return nil, submitErr, false
	}

	select {
	case r := <-done:
		return r.value, r.err, false
	case <-time.After(budget):
		return nil, nil, true
	}
}

// compensate rolls back completed steps in reverse order. Individual
// compensation failures are logged and skipped so the remaining steps
// still get their rollback. The saga always ends FAILED afterwards.
func (o *Orchestrator) compensate(ctx context.Context, in *instance) {
	in.addLog("starting compensation")
	if err := in.transition(StateCompensating); err != nil {
		in.forceState(StateCompensating)
	}

	steps := in.definition.Steps
	completed := in.snapshotCompletedSteps()

	for i := len(completed) - 1; i >= 0; i-- {
		var step *Step
		var stepIdx int
		for j := range steps {
			if steps[j].Name == completed[i] {
				step = &steps[j]
				stepIdx = j
				break
			}
		}
		if step == nil {
			continue
		}

		if step.Compensation == "" {
			in.addLog(fmt.Sprintf("step %d (%s) has no compensation, skipping", stepIdx, step.Name))
			continue
		}

		h, ok := o.handler(step.Domain, step.Compensation)
		if !ok {
			in.addLog("no compensation handler for " + step.Domain + ":" + step.Compensation)
			logger.Warn("saga compensation handler missing",
				zap.String("saga_id", in.id),
				zap.String("handler", step.Domain+":"+step.Compensation),
			)
			continue
		}

		sc := StepContext{
			SagaID:         in.id,
			Context:        in.context,
			StepResults:    in.snapshotStepResults(),
			IsCompensation: true,
		}
		if _, err := h(ctx, in.triggerData, sc); err != nil {
			in.addLog(fmt.Sprintf("compensation for step %d (%s) failed: %s", stepIdx, step.Name, err.Error()))
			logger.Error("saga compensation failed",
				zap.String("saga_id", in.id),
				zap.String("step", step.Name),
				zap.Error(err),
			)
			continue
		}
		in.addLog(fmt.Sprintf("compensation for step %d (%s) completed", stepIdx, step.Name))
	}

	if err := in.transition(StateCompensationComplete); err != nil {
		in.forceState(StateFailed)
	} else if err := in.transition(StateFailed); err != nil {
		in.forceState(StateFailed)
	}

	o.mu.Lock()
	o.stats.compensated++
	o.stats.failed++
	o.mu.Unlock()

	in.addLog("compensation complete, saga marked as failed")
}

// archiveInstance moves a finished saga from the active map into the
// bounded recent ring.
func (o *Orchestrator) archiveInstance(in *instance) {
	snap := in.snapshot()

	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.active, in.id)
	o.archive = append(o.archive, snap)
	if len(o.archive) > o.archiveCap {
		o.archive = o.archive[len(o.archive)-o.archiveCap:]
	}
}

// GetActiveSagas snapshots all in-flight sagas.
func (o *Orchestrator) GetActiveSagas() []Snapshot {
	o.mu.Lock()
	instances := make([]*instance, 0, len(o.active))
	for _, in := range o.active {
		instances = append(instances, in)
	}
	o.mu.Unlock()

	snaps := make([]Snapshot, 0, len(instances))
	for _, in := range instances {
		snaps = append(snaps, in.snapshot())
	}
	return snaps
}

// GetRecentSagas returns up to limit most recently finished sagas,
// oldest first. Limit defaults to 20.
func (o *Orchestrator) GetRecentSagas(limit int) []Snapshot {
	if limit <= 0 {
		limit = 20
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	start := len(o.archive) - limit
	if start < 0 {
		start = 0
	}
	return append([]Snapshot(nil), o.archive[start:]...)
}

// GetSagaByID finds a saga among active instances first, then the archive.
func (o *Orchestrator) GetSagaByID(id string) (Snapshot, bool) {
	o.mu.Lock()
	in, isActive := o.active[id]
	o.mu.Unlock()
	if isActive {
		return in.snapshot(), true
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.archive {
		if o.archive[i].ID == id {
			return o.archive[i], true
		}
	}
	return Snapshot{}, false
}

// GetStats returns orchestrator counters for diagnostics.
func (o *Orchestrator) GetStats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	defs := make([]string, 0, len(o.definitions))
	for k := range o.definitions {
		defs = append(defs, k)
	}
	sort.Strings(defs)

	handlers := make([]string, 0, len(o.handlers))
	for k := range o.handlers {
		handlers = append(handlers, k.String())
	}
	sort.Strings(handlers)

	return Stats{
		Started:            o.stats.started,
		Completed:          o.stats.completed,
		Failed:             o.stats.failed,
		Compensated:        o.stats.compensated,
		TimedOut:           o.stats.timedOut,
		Active:             len(o.active),
		Definitions:        defs,
		RegisteredHandlers: handlers,
	}
}
