// internal/browser/factory.go

// Package browser executes decided actions against a page and reports the
// resulting state. Two executors implement the same contract: a chromedp-backed
// session and a deterministic in-memory simulation.
package browser

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// NewExecutor selects the executor for a task: real Chrome when requested,
// otherwise the simulated session.
func NewExecutor(useRealBrowser bool, cfg config.BrowserConfig, logger *zap.Logger) (schemas.BrowserExecutor, error) {
	if useRealBrowser {
		return NewCDPExecutor(cfg, logger)
	}
	return NewSimExecutor(nil, logger), nil
}
