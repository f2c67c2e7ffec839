package schemas

import "time"

// -- Task Schemas --

// Task defines the goal and runtime parameters for one agent loop instance.
// It is immutable after creation; concurrent tasks share no state.
type Task struct {
	ID             string    `json:"id"`
	Goal           string    `json:"goal"`
	MaxIterations  int       `json:"max_iterations"`
	UseRealBrowser bool      `json:"use_real_browser"`
	CreatedAt      time.Time `json:"created_at"`
}

// LoopState models the agent loop's lifecycle.
type LoopState string

const (
	StateRunning          LoopState = "RUNNING"
	StateAwaitingApproval LoopState = "AWAITING_APPROVAL" // Suspended on a destructive action pending human accept/reject.
	StateDone             LoopState = "DONE"              // Terminal: the provider concluded the task.
	StateFailed           LoopState = "FAILED"            // Terminal: unrecoverable provider error or cancellation.
	StateIterationLimit   LoopState = "ITERATION_LIMIT"   // Terminal: iteration budget exhausted, partial result.
)

// Terminal reports whether the state ends the loop.
func (s LoopState) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateIterationLimit
}

// StepOutcome tags the result of one loop turn.
type StepOutcome string

const (
	OutcomeOK      StepOutcome = "ok"
	OutcomeFailed  StepOutcome = "failed"
	OutcomeSkipped StepOutcome = "skipped"
)

// PageState is a snapshot of observable browser state after an action. It is
// immutable once captured; the next step supersedes it rather than mutating it.
type PageState struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	TextExcerpt   string    `json:"text_excerpt,omitempty"`
	ScreenshotRef string    `json:"screenshot_ref,omitempty"`
	CapturedAt    time.Time `json:"captured_at"`
}

// AgentStep records one iteration of the loop. Steps are append-only and owned
// exclusively by the loop that produced them.
type AgentStep struct {
	Index     int         `json:"index"`
	Action    Action      `json:"action"`
	Approved  bool        `json:"approved"` // True unless the step required approval and was rejected.
	Outcome   StepOutcome `json:"outcome"`
	Page      PageState   `json:"page,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// TaskResult is the final output of a loop run.
type TaskResult struct {
	TaskID     string      `json:"task_id"`
	State      LoopState   `json:"state"`
	Summary    string      `json:"summary,omitempty"`
	Steps      []AgentStep `json:"steps"`
	Iterations int         `json:"iterations"`
	Error      string      `json:"error,omitempty"`
}

// PendingApproval describes a destructive action suspended until a human
// accepts or rejects it. It exists only between the safety classifier flagging
// the action and the human's decision; the loop must not execute the action
// while it is open.
type PendingApproval struct {
	TaskID    string    `json:"task_id"`
	StepIndex int       `json:"step_index"`
	Message   string    `json:"message"`
	Action    Action    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}
