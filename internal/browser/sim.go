// internal/browser/sim.go
package browser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// SimExecutor is a deterministic in-memory browser. It serves HTML fixtures
// keyed by URL, resolves selectors against the parsed DOM, and synthesizes a
// page for unknown URLs so navigation is total. Used when
// agent.use_real_browser is false and throughout the tests.
type SimExecutor struct {
	logger   *zap.Logger
	fixtures map[string]string

	mu      sync.Mutex
	closed  bool
	doc     *html.Node
	url     string
	typed   map[string]string // selector -> last typed text
}

var _ schemas.BrowserExecutor = (*SimExecutor)(nil)

// NewSimExecutor builds a simulated session over the given fixtures. fixtures
// may be nil; every URL then resolves to a synthesized placeholder page.
func NewSimExecutor(fixtures map[string]string, logger *zap.Logger) *SimExecutor {
	return &SimExecutor{
		logger:   logger.Named("browser.sim"),
		fixtures: fixtures,
		typed:    make(map[string]string),
	}
}

// Execute runs one action against the in-memory DOM.
func (e *SimExecutor) Execute(ctx context.Context, action schemas.Action) (schemas.PageState, error) {
	if err := ctx.Err(); err != nil {
		return schemas.PageState{}, NewExecError(ErrCodeExecutionFailure, "context done", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return schemas.PageState{}, NewExecError(ErrCodeSessionClosed, "executor already closed", nil)
	}

	var screenshotRef string

	switch action.Type {
	case schemas.ActionNavigate:
		if action.Value == "" {
			return schemas.PageState{}, NewExecError(ErrCodeInvalidParameters, "NAVIGATE requires a URL in value", nil)
		}
		if err := e.load(action.Value); err != nil {
			return schemas.PageState{}, err
		}

	case schemas.ActionClick:
		if action.Selector == "" {
			return schemas.PageState{}, NewExecError(ErrCodeInvalidParameters, "CLICK requires a selector", nil)
		}
		node, err := e.find(action.Selector)
		if err != nil {
			return schemas.PageState{}, err
		}
		// Clicking an anchor follows its href; everything else is a no-op
		// state-wise, matching a static DOM.
		if node.Data == "a" {
			if href := attrValue(node, "href"); href != "" {
				if err := e.load(href); err != nil {
					return schemas.PageState{}, err
				}
			}
		}

	case schemas.ActionTypeText:
		if action.Selector == "" {
			return schemas.PageState{}, NewExecError(ErrCodeInvalidParameters, "TYPE requires a selector", nil)
		}
		if _, err := e.find(action.Selector); err != nil {
			return schemas.PageState{}, err
		}
		e.typed[action.Selector] = action.Value

	case schemas.ActionScreenshot:
		if e.doc == nil {
			return schemas.PageState{}, NewExecError(ErrCodeExecutionFailure, "no page loaded", nil)
		}
		screenshotRef = "sim://" + uuid.NewString() + ".png"

	case schemas.ActionExtractText:
		if action.Selector != "" {
			if _, err := e.find(action.Selector); err != nil {
				return schemas.PageState{}, err
			}
		}

	default:
		return schemas.PageState{}, NewExecError(ErrCodeInvalidParameters, fmt.Sprintf("unsupported action type %q", action.Type), nil)
	}

	state := e.snapshot(action)
	state.ScreenshotRef = screenshotRef
	return state, nil
}

// Close marks the session closed. Idempotent.
func (e *SimExecutor) Close(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// load parses the fixture for url, or synthesizes a page when none exists.
func (e *SimExecutor) load(url string) error {
	content, ok := e.fixtures[url]
	if !ok {
		content = fmt.Sprintf(
			"<html><head><title>%s</title></head><body><p>Simulated page for %s</p></body></html>",
			url, url)
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return NewExecError(ErrCodeExecutionFailure, "failed to parse fixture HTML", err)
	}

	e.doc = doc
	e.url = url
	e.logger.Debug("Loaded page", zap.String("url", url))
	return nil
}

// find resolves a CSS-ish selector against the current DOM. Comma-separated
// alternatives are tried in order.
func (e *SimExecutor) find(selector string) (*html.Node, error) {
	if e.doc == nil {
		return nil, NewExecError(ErrCodeElementNotFound, "no page loaded", nil)
	}

	for _, alt := range strings.Split(selector, ",") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		xpath, err := selectorToXPath(alt)
		if err != nil {
			continue
		}
		node, err := htmlquery.Query(e.doc, xpath)
		if err == nil && node != nil {
			return node, nil
		}
	}
	return nil, NewExecError(ErrCodeElementNotFound, fmt.Sprintf("no element matches %q", selector), nil)
}

func (e *SimExecutor) snapshot(action schemas.Action) schemas.PageState {
	state := schemas.PageState{
		URL:        e.url,
		CapturedAt: time.Now().UTC(),
	}
	if e.doc == nil {
		return state
	}

	if titleNode := htmlquery.FindOne(e.doc, "//title"); titleNode != nil {
		state.Title = strings.TrimSpace(htmlquery.InnerText(titleNode))
	}

	textRoot := e.doc
	if action.Type == schemas.ActionExtractText && action.Selector != "" {
		if node, err := e.find(action.Selector); err == nil {
			textRoot = node
		}
	} else if body := htmlquery.FindOne(e.doc, "//body"); body != nil {
		textRoot = body
	}

	text := strings.Join(strings.Fields(htmlquery.InnerText(textRoot)), " ")
	if len(text) > 2000 {
		text = text[:2000]
	}
	state.TextExcerpt = text
	return state
}

var simpleSelectorPattern = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9]*)?(?:#([\w-]+)|\.([\w-]+)|\[(\w+)=['"]?([^'"\]]*)['"]?\])?$`)

// selectorToXPath translates the CSS subset the decision providers emit
// (tag, #id, .class, tag[attr='value'] and bare combinations) into XPath.
func selectorToXPath(selector string) (string, error) {
	m := simpleSelectorPattern.FindStringSubmatch(selector)
	if m == nil {
		return "", fmt.Errorf("unsupported selector %q", selector)
	}

	tag := m[1]
	if tag == "" {
		tag = "*"
	}

	switch {
	case m[2] != "":
		return fmt.Sprintf("//%s[@id='%s']", tag, m[2]), nil
	case m[3] != "":
		return fmt.Sprintf("//%s[contains(concat(' ', normalize-space(@class), ' '), ' %s ')]", tag, m[3]), nil
	case m[4] != "":
		return fmt.Sprintf("//%s[@%s='%s']", tag, m[4], m[5]), nil
	default:
		return "//" + tag, nil
	}
}

func attrValue(node *html.Node, name string) string {
	for _, attr := range node.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}
