// internal/server/gate.go
package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// restGate bridges the loop's approval suspension to the REST surface: the
// pending request becomes visible on GET /api/tasks/:id/approval and resolves
// when POST /api/tasks/:id/approval arrives. An unanswered request resolves
// as reject after the configured timeout.
type restGate struct {
	record  *TaskRecord
	timeout time.Duration
	logger  *zap.Logger
}

var _ schemas.ApprovalGate = (*restGate)(nil)

func newRESTGate(record *TaskRecord, timeout time.Duration, logger *zap.Logger) *restGate {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &restGate{record: record, timeout: timeout, logger: logger.Named("server.gate")}
}

func (g *restGate) Request(ctx context.Context, pending schemas.PendingApproval) (bool, error) {
	respond := g.record.OpenApproval(pending)
	defer g.record.CloseApproval()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case approved := <-respond:
		g.logger.Info("Approval resolved",
			zap.String("task_id", pending.TaskID),
			zap.Int("step_index", pending.StepIndex),
			zap.Bool("approved", approved))
		return approved, nil
	case <-timer.C:
		g.logger.Warn("Approval timed out, rejecting",
			zap.String("task_id", pending.TaskID),
			zap.Duration("timeout", g.timeout))
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
