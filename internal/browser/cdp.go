// internal/browser/cdp.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// CDPExecutor drives a real headless Chrome via chromedp. One executor owns
// one browser session; sessions are per-task and closed by the owner on every
// exit path.
type CDPExecutor struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	browserCtx   context.Context
	cancelCtx    context.CancelFunc
	cancelAlloc  context.CancelFunc

	mu     sync.Mutex
	closed bool
}

var _ schemas.BrowserExecutor = (*CDPExecutor)(nil)

// NewCDPExecutor launches the allocator and browser contexts. Chrome itself
// starts lazily on the first action.
func NewCDPExecutor(cfg config.BrowserConfig, logger *zap.Logger) (*CDPExecutor, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		// Container-stable flags; dev-shm in particular prevents crashes
		// under constrained /dev/shm.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	for _, arg := range cfg.Args {
		name := strings.TrimLeft(arg, "-")
		if name == "" {
			continue
		}
		if key, value, found := strings.Cut(name, "="); found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	return &CDPExecutor{
		cfg:         cfg,
		logger:      logger.Named("browser.cdp"),
		browserCtx:  browserCtx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
	}, nil
}

// Execute runs a single action and captures the resulting page state. Errors
// come back as *ExecError so the loop can record the code on the step.
func (e *CDPExecutor) Execute(ctx context.Context, action schemas.Action) (schemas.PageState, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return schemas.PageState{}, NewExecError(ErrCodeSessionClosed, "executor already closed", nil)
	}
	e.mu.Unlock()

	var screenshotRef string
	var err error

	switch action.Type {
	case schemas.ActionNavigate:
		err = e.navigate(ctx, action.Value)
	case schemas.ActionClick:
		err = e.click(ctx, action.Selector)
	case schemas.ActionTypeText:
		err = e.typeText(ctx, action.Selector, action.Value)
	case schemas.ActionScreenshot:
		screenshotRef, err = e.screenshot(ctx)
	case schemas.ActionExtractText:
		// Page text is captured into the state snapshot below; nothing
		// separate to do here beyond validating the session is usable.
	default:
		return schemas.PageState{}, NewExecError(ErrCodeInvalidParameters, fmt.Sprintf("unsupported action type %q", action.Type), nil)
	}

	if err != nil {
		return schemas.PageState{}, err
	}

	state, stateErr := e.captureState(ctx, action)
	if stateErr != nil {
		return schemas.PageState{}, stateErr
	}
	state.ScreenshotRef = screenshotRef
	return state, nil
}

// Close tears down the browser and allocator. Idempotent.
func (e *CDPExecutor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	// chromedp.Cancel waits for the browser process to exit gracefully.
	if err := chromedp.Cancel(e.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Warn("Graceful browser shutdown failed", zap.Error(err))
	}
	e.cancelCtx()
	e.cancelAlloc()
	return nil
}

func (e *CDPExecutor) navigate(ctx context.Context, url string) error {
	if url == "" {
		return NewExecError(ErrCodeInvalidParameters, "NAVIGATE requires a URL in value", nil)
	}

	opCtx, cancel := e.opContext(ctx, e.cfg.NavigationTimeout)
	defer cancel()

	err := chromedp.Run(opCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			return NewExecError(ErrCodeNavigationTimeout, fmt.Sprintf("navigation to %s timed out after %v", url, e.cfg.NavigationTimeout), err)
		}
		return e.runError("navigation failed", err)
	}
	return nil
}

func (e *CDPExecutor) click(ctx context.Context, selector string) error {
	if selector == "" {
		return NewExecError(ErrCodeInvalidParameters, "CLICK requires a selector", nil)
	}

	opCtx, cancel := e.opContext(ctx, e.cfg.ActionTimeout)
	defer cancel()

	err := chromedp.Run(opCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		// WaitVisible blocking until the deadline means the node never
		// appeared; surface that as element-not-found rather than a timeout.
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			return NewExecError(ErrCodeElementNotFound, fmt.Sprintf("no visible element matches %q", selector), err)
		}
		return e.runError("click failed", err)
	}
	return nil
}

func (e *CDPExecutor) typeText(ctx context.Context, selector, text string) error {
	if selector == "" {
		return NewExecError(ErrCodeInvalidParameters, "TYPE requires a selector", nil)
	}

	opCtx, cancel := e.opContext(ctx, e.cfg.ActionTimeout)
	defer cancel()

	err := chromedp.Run(opCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			return NewExecError(ErrCodeElementNotFound, fmt.Sprintf("no visible element matches %q", selector), err)
		}
		return e.runError("type failed", err)
	}
	return nil
}

func (e *CDPExecutor) screenshot(ctx context.Context) (string, error) {
	opCtx, cancel := e.opContext(ctx, e.cfg.ActionTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(opCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", e.runError("screenshot capture failed", err)
	}

	dir := e.cfg.ScreenshotDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", NewExecError(ErrCodeExecutionFailure, "failed to create screenshot dir", err)
	}

	path := filepath.Join(dir, uuid.NewString()+".png")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", NewExecError(ErrCodeExecutionFailure, "failed to write screenshot", err)
	}

	e.logger.Debug("Screenshot written", zap.String("path", path))
	return path, nil
}

// captureState snapshots URL, title and a bounded body-text excerpt.
func (e *CDPExecutor) captureState(ctx context.Context, action schemas.Action) (schemas.PageState, error) {
	opCtx, cancel := e.opContext(ctx, e.cfg.ActionTimeout)
	defer cancel()

	var url, title, bodyText string
	textSelector := "body"
	if action.Type == schemas.ActionExtractText && action.Selector != "" {
		textSelector = action.Selector
	}

	err := chromedp.Run(opCtx,
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.Text(textSelector, &bodyText, chromedp.ByQuery),
	)
	if err != nil {
		if action.Type == schemas.ActionExtractText && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			return schemas.PageState{}, NewExecError(ErrCodeElementNotFound, fmt.Sprintf("no element matches %q", textSelector), err)
		}
		return schemas.PageState{}, e.runError("state capture failed", err)
	}

	limit := e.cfg.TextExcerptLimit
	if limit <= 0 {
		limit = 2000
	}
	if len(bodyText) > limit {
		bodyText = bodyText[:limit]
	}

	return schemas.PageState{
		URL:         url,
		Title:       title,
		TextExcerpt: bodyText,
		CapturedAt:  time.Now().UTC(),
	}, nil
}

// opContext derives the per-action context from both the caller's context and
// the browser session, bounded by timeout.
func (e *CDPExecutor) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opCtx, cancelTimeout := context.WithTimeout(e.browserCtx, timeout)

	// Propagate caller cancellation into the browser-derived context.
	stop := context.AfterFunc(ctx, cancelTimeout)
	return opCtx, func() {
		stop()
		cancelTimeout()
	}
}

// runError classifies a chromedp failure that is not a recognized timeout.
func (e *CDPExecutor) runError(msg string, err error) error {
	if errors.Is(err, context.Canceled) || e.browserCtx.Err() != nil {
		return NewExecError(ErrCodeSessionClosed, msg, err)
	}
	return NewExecError(ErrCodeExecutionFailure, msg, err)
}
