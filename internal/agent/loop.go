// Package agent runs the perceive-decide-act loop for one task: ask a
// decision provider for the next action, classify it, gate destructive
// actions on human approval, execute it, and record the step. The loop always
// terminates within the task's iteration budget.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/decision"
	"github.com/xkilldash9x/pilot-cli/internal/safety"
)

// ErrCancelled marks a task aborted by context cancellation rather than by
// its own logic.
var ErrCancelled = errors.New("task cancelled")

// Loop coordinates one task run. It owns the step history; the executor and
// approval gate are owned by the caller, which closes them after Run returns.
type Loop struct {
	classifier *safety.Classifier
	primary    decision.Provider
	fallback   decision.Provider
	executor   schemas.BrowserExecutor
	gate       schemas.ApprovalGate
	logger     *zap.Logger

	// onStateChange, when set, observes every loop state transition. The
	// server uses it to surface live task status.
	onStateChange func(schemas.LoopState)
}

// New assembles a loop. primary and fallback may be the same provider when no
// LLM is configured; the substitution logic then degenerates harmlessly.
func New(
	classifier *safety.Classifier,
	primary decision.Provider,
	fallback decision.Provider,
	executor schemas.BrowserExecutor,
	gate schemas.ApprovalGate,
	logger *zap.Logger,
) *Loop {
	return &Loop{
		classifier: classifier,
		primary:    primary,
		fallback:   fallback,
		executor:   executor,
		gate:       gate,
		logger:     logger.Named("agent.loop"),
	}
}

// OnStateChange registers a state observer. Must be called before Run.
func (l *Loop) OnStateChange(fn func(schemas.LoopState)) { l.onStateChange = fn }

// Run executes the task to a terminal state. It never panics outward and
// always returns a result; errors along the way become failed or skipped
// steps unless both providers are exhausted.
func (l *Loop) Run(ctx context.Context, task schemas.Task) schemas.TaskResult {
	l.setState(schemas.StateRunning)

	var (
		history     []schemas.AgentStep
		page        *schemas.PageState
		provider    = l.primary
		substituted = false
	)

	result := func(state schemas.LoopState, summary string, err error) schemas.TaskResult {
		l.setState(state)
		res := schemas.TaskResult{
			TaskID:     task.ID,
			State:      state,
			Summary:    summary,
			Steps:      history,
			Iterations: len(history),
		}
		if err != nil {
			res.Error = err.Error()
		}
		return res
	}

	for iteration := 0; ; iteration++ {
		if ctx.Err() != nil {
			return result(schemas.StateFailed, "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err()))
		}
		if iteration >= task.MaxIterations {
			l.logger.Info("Iteration budget exhausted",
				zap.String("task_id", task.ID),
				zap.Int("max_iterations", task.MaxIterations))
			return result(schemas.StateIterationLimit,
				fmt.Sprintf("Stopped after %d iterations without concluding.", task.MaxIterations), nil)
		}

		action, err := provider.Decide(ctx, task, history, page)
		if err != nil {
			if ctx.Err() != nil {
				return result(schemas.StateFailed, "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err()))
			}
			if substituted || provider == l.fallback {
				// Both providers exhausted; liveness demands we stop here.
				return result(schemas.StateFailed, "", fmt.Errorf("all decision providers failed: %w", err))
			}
			l.logger.Warn("Primary provider failed, substituting fallback",
				zap.String("task_id", task.ID),
				zap.String("provider", provider.Name()),
				zap.Error(err))
			provider = l.fallback
			substituted = true

			action, err = provider.Decide(ctx, task, history, page)
			if err != nil {
				return result(schemas.StateFailed, "", fmt.Errorf("fallback provider failed: %w", err))
			}
		}
		action.Timestamp = time.Now().UTC()

		if action.IsTerminal() {
			history = append(history, l.newStep(len(history), action, true, schemas.OutcomeOK, page, ""))
			l.logger.Info("Task concluded",
				zap.String("task_id", task.ID),
				zap.Int("iterations", len(history)))
			return result(schemas.StateDone, action.Value, nil)
		}

		if l.classifier.Classify(action) == safety.VerdictDestructive {
			approved, err := l.requestApproval(ctx, task, len(history), action)
			if err != nil {
				return result(schemas.StateFailed, "", err)
			}
			if !approved {
				l.logger.Info("Destructive action rejected",
					zap.String("task_id", task.ID),
					zap.String("action", string(action.Type)))
				history = append(history, l.newStep(len(history), action, false, schemas.OutcomeSkipped, page, ""))
				continue
			}
		}

		state, err := l.executor.Execute(ctx, action)
		if err != nil {
			l.logger.Warn("Action execution failed",
				zap.String("task_id", task.ID),
				zap.String("action", string(action.Type)),
				zap.Error(err))
			history = append(history, l.newStep(len(history), action, true, schemas.OutcomeFailed, page, err.Error()))
			continue
		}

		page = &state
		history = append(history, l.newStep(len(history), action, true, schemas.OutcomeOK, page, ""))
	}
}

// requestApproval suspends the loop on the gate. A gate error other than
// cancellation counts as a reject: the conservative reading of an absent
// human.
func (l *Loop) requestApproval(ctx context.Context, task schemas.Task, stepIndex int, action schemas.Action) (bool, error) {
	l.setState(schemas.StateAwaitingApproval)
	defer l.setState(schemas.StateRunning)

	pending := schemas.PendingApproval{
		TaskID:    task.ID,
		StepIndex: stepIndex,
		Message:   l.classifier.ApprovalMessage(action),
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}

	approved, err := l.gate.Request(ctx, pending)
	if err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		l.logger.Warn("Approval gate error, treating as reject",
			zap.String("task_id", task.ID),
			zap.Error(err))
		return false, nil
	}
	return approved, nil
}

func (l *Loop) newStep(index int, action schemas.Action, approved bool, outcome schemas.StepOutcome, page *schemas.PageState, errMsg string) schemas.AgentStep {
	step := schemas.AgentStep{
		Index:     index,
		Action:    action,
		Approved:  approved,
		Outcome:   outcome,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
	if page != nil {
		step.Page = *page
	}
	return step
}

func (l *Loop) setState(state schemas.LoopState) {
	if l.onStateChange != nil {
		l.onStateChange(state)
	}
}
