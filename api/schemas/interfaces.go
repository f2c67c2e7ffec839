package schemas

import "context"

// -- Centralized Core Service Interfaces --
// These live here, not in the packages that implement them, to keep the
// dependency graph acyclic: the agent loop, the browser layer and the hosting
// surfaces (CLI, REST) all meet through this package.

// BrowserExecutor executes one browser action against an open session and
// returns the resulting page snapshot. A single executor is owned exclusively
// by one task for its lifetime and must be closed on every exit path.
type BrowserExecutor interface {
	// Execute performs the action. Executor failures (element not found,
	// navigation timeout, closed session) are returned as coded errors and are
	// recoverable: the loop records a failed step and proceeds.
	Execute(ctx context.Context, action Action) (PageState, error)
	// Close releases the underlying session. Safe to call more than once.
	Close(ctx context.Context) error
}

// ApprovalGate is the human approval boundary. The loop blocks in Request
// until an accept/reject signal arrives from whatever front-end hosts it
// (terminal prompt, REST approval call). The hosting layer may impose a
// timeout and resolve it as a reject.
type ApprovalGate interface {
	Request(ctx context.Context, pending PendingApproval) (approved bool, err error)
}
