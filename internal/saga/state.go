package saga

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "trustchecker.io/trustchecker/internal/pkg/errors"
)

// State is a saga instance's lifecycle state.
type State string

const (
	StateCreated              State = "CREATED"
	StateRunning              State = "RUNNING"
	StateStepPending          State = "STEP_PENDING"
	StateStepComplete         State = "STEP_COMPLETE"
	StateCompleted            State = "COMPLETED"
	StateCompensating         State = "COMPENSATING"
	StateCompensationComplete State = "COMPENSATION_COMPLETE"
	StateFailed               State = "FAILED"
	StateTimedOut             State = "TIMED_OUT"
)

// validTransitions is the saga state machine. COMPLETED, FAILED and
// TIMED_OUT are terminal.
var validTransitions = map[State][]State{
	StateCreated:              {StateRunning},
	StateRunning:              {StateStepPending, StateCompleted, StateFailed, StateTimedOut},
	StateStepPending:          {StateStepComplete, StateCompensating, StateTimedOut},
	StateStepComplete:         {StateStepPending, StateCompleted, StateCompensating},
	StateCompensating:         {StateCompensationComplete, StateFailed},
	StateCompensationComplete: {StateFailed},
}

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// LogEntry is one line of a saga instance's audit log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Step      int       `json:"step"`
	State     State     `json:"state"`
	Message   string    `json:"message"`
}

// Snapshot is the externally visible view of a saga instance, safe to
// retain after the instance itself keeps running or is archived.
type Snapshot struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	State          State          `json:"state"`
	CurrentStep    int            `json:"currentStep"`
	TotalSteps     int            `json:"totalSteps"`
	CompletedSteps []string       `json:"completedSteps"`
	StepResults    map[string]any `json:"stepResults,omitempty"`
	Error          string         `json:"error,omitempty"`
	StartedAt      time.Time      `json:"startedAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	DurationMs     int64          `json:"durationMs"`
	Log            []LogEntry     `json:"log"`
}

// instance is one in-flight saga run. All mutation goes through methods
// holding mu; the executing goroutine and diagnostics readers may touch it
// concurrently.
type instance struct {
	mu sync.Mutex

	id             string
	definition     Definition
	state          State
	triggerData    map[string]any
	context        map[string]any
	currentStep    int
	completedSteps []string
	stepResults    map[string]any
	err            string
	startedAt      time.Time
	completedAt    *time.Time
	timeout        time.Duration
	log            []LogEntry
}

func newInstance(def Definition, triggerData, sagaCtx map[string]any) *instance {
	return &instance{
		id:          "saga_" + uuid.NewString(),
		definition:  def,
		state:       StateCreated,
		triggerData: triggerData,
		context:     sagaCtx,
		stepResults: make(map[string]any),
		startedAt:   time.Now(),
		timeout:     def.Timeout,
	}
}

// transition moves the instance to next, enforcing the state machine.
func (in *instance) transition(next State) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.transitionLocked(next)
}

func (in *instance) transitionLocked(next State) error {
	allowed := false
	for _, s := range validTransitions[in.state] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return apperrors.Newf(apperrors.CodeInvalidTransition,
			"invalid saga transition: %s to %s (saga: %s)", in.state, next, in.id)
	}

	prev := in.state
	in.state = next
	in.addLogLocked("state transition: " + string(prev) + " to " + string(next))
	if next.Terminal() {
		now := time.Now()
		in.completedAt = &now
	}
	return nil
}

// forceState bypasses the transition table. Used only on the compensation
// path where the source state may already be near-terminal.
func (in *instance) forceState(next State) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.state = next
	if next.Terminal() && in.completedAt == nil {
		now := time.Now()
		in.completedAt = &now
	}
}

func (in *instance) addLog(message string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.addLogLocked(message)
}

func (in *instance) addLogLocked(message string) {
	in.log = append(in.log, LogEntry{
		Timestamp: time.Now(),
		Step:      in.currentStep,
		State:     in.state,
		Message:   message,
	})
}

func (in *instance) elapsed() time.Duration {
	in.mu.Lock()
	defer in.mu.Unlock()
	return time.Since(in.startedAt)
}

func (in *instance) timedOut() bool {
	return in.elapsed() > in.timeout
}

func (in *instance) setError(msg string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.err = msg
}

func (in *instance) setStep(i int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.currentStep = i
}

func (in *instance) recordStepResult(name string, result any) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stepResults[name] = result
	in.completedSteps = append(in.completedSteps, name)
}

func (in *instance) snapshotCompletedSteps() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.completedSteps...)
}

func (in *instance) snapshotStepResults() map[string]any {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make(map[string]any, len(in.stepResults))
	for k, v := range in.stepResults {
		out[k] = v
	}
	return out
}

// snapshot copies the instance's current observable state.
func (in *instance) snapshot() Snapshot {
	in.mu.Lock()
	defer in.mu.Unlock()

	snap := Snapshot{
		ID:             in.id,
		Name:           in.definition.Name,
		State:          in.state,
		CurrentStep:    in.currentStep,
		TotalSteps:     len(in.definition.Steps),
		CompletedSteps: append([]string(nil), in.completedSteps...),
		StepResults:    make(map[string]any, len(in.stepResults)),
		Error:          in.err,
		StartedAt:      in.startedAt,
		Log:            append([]LogEntry(nil), in.log...),
	}
	for k, v := range in.stepResults {
		snap.StepResults[k] = v
	}
	if in.completedAt != nil {
		at := *in.completedAt
		snap.CompletedAt = &at
		snap.DurationMs = at.Sub(in.startedAt).Milliseconds()
	} else {
		snap.DurationMs = time.Since(in.startedAt).Milliseconds()
	}
	return snap
}
