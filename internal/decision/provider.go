// Package decision produces the next browser action for a task. Two providers
// implement the same contract: an LLM-backed one and a deterministic
// rule-based fallback.
package decision

import (
	"context"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// Provider decides the next action for a task given the step history and the
// latest observed page state.
type Provider interface {
	// Decide returns the next action. page may be nil before the first
	// navigation. Implementations must not mutate history.
	Decide(ctx context.Context, task schemas.Task, history []schemas.AgentStep, page *schemas.PageState) (schemas.Action, error)

	// Name identifies the provider in logs and step records.
	Name() string
}
