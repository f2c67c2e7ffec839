// internal/decision/rules.go
package decision

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// Ordered pattern table for goal analysis. Mirrors the verb classes the LLM
// prompt describes so the fallback stays behaviorally close to the AI path.
var (
	urlPattern         = regexp.MustCompile(`https?://\S+`)
	websitePattern     = regexp.MustCompile(`(?i)\b(amazon|google|youtube|facebook|twitter|netflix|ebay|reddit|linkedin|instagram|wikipedia|github|stackoverflow|microsoft|apple)\b`)
	finishPattern      = regexp.MustCompile(`(?i)^\s*(finish|done|stop|end)\b`)
	submitClickPattern = regexp.MustCompile(`(?i)\b(click|press|tap)\b`)
	paymentPattern     = regexp.MustCompile(`(?i)\b(pay|purchase|buy|checkout)\b`)
	textInputPattern   = regexp.MustCompile(`(?i)\b(type|enter|fill|input|write|search)\b`)
	screenshotPattern  = regexp.MustCompile(`(?i)\b(screenshot|capture|snapshot)\b`)
	extractPattern     = regexp.MustCompile(`(?i)\b(read|extract|summarize|title|text)\b`)
	typedTextPattern   = regexp.MustCompile(`(?i)(?:type|enter|search for|write)\s+"([^"]+)"`)
)

// RulesProvider is a deterministic fallback that derives actions from the
// task goal with an ordered regexp table. It never fails: unmatched goals
// conclude with an explanatory summary, which also bounds the loop when the
// goal is unintelligible.
type RulesProvider struct {
	logger *zap.Logger
}

var _ Provider = (*RulesProvider)(nil)

func NewRulesProvider(logger *zap.Logger) *RulesProvider {
	return &RulesProvider{logger: logger.Named("decision.rules")}
}

func (p *RulesProvider) Name() string { return "rules" }

// Decide walks the pattern table in order, skipping action classes already
// attempted in history, and concludes once nothing applies. Each class fires
// at most once per task, so the provider always reaches CONCLUDE.
func (p *RulesProvider) Decide(_ context.Context, task schemas.Task, history []schemas.AgentStep, page *schemas.PageState) (schemas.Action, error) {
	goal := task.Goal

	attempted := make(map[schemas.ActionType]bool, len(history))
	for _, step := range history {
		attempted[step.Action.Type] = true
	}

	if finishPattern.MatchString(goal) {
		return concludeAction("Task marked finished by request.", history), nil
	}

	if !attempted[schemas.ActionNavigate] {
		if target := navigationTarget(goal); target != "" {
			return schemas.Action{
				Type:      schemas.ActionNavigate,
				Value:     target,
				Rationale: fmt.Sprintf("Goal references %s; navigating there first.", target),
			}, nil
		}
	}

	if !attempted[schemas.ActionTypeText] && textInputPattern.MatchString(goal) {
		text := "test data"
		if m := typedTextPattern.FindStringSubmatch(goal); len(m) > 1 {
			text = m[1]
		}
		selector := "input"
		if page != nil && strings.Contains(strings.ToLower(page.TextExcerpt), "input") {
			selector = "input[type='text'], input:not([type]), textarea"
		}
		return schemas.Action{
			Type:      schemas.ActionTypeText,
			Selector:  selector,
			Value:     text,
			Rationale: "Goal asks for text entry.",
		}, nil
	}

	if !attempted[schemas.ActionClick] {
		if paymentPattern.MatchString(goal) {
			return schemas.Action{
				Type:      schemas.ActionClick,
				Selector:  "button.pay-now, button.checkout, button#purchase",
				Rationale: "Goal asks to complete a purchase flow.",
			}, nil
		}
		if submitClickPattern.MatchString(goal) {
			selector := "button"
			if page != nil && strings.Contains(strings.ToLower(page.TextExcerpt), "form") {
				selector = "button[type='submit']"
			}
			return schemas.Action{
				Type:      schemas.ActionClick,
				Selector:  selector,
				Rationale: "Goal asks to click an element.",
			}, nil
		}
	}

	if !attempted[schemas.ActionScreenshot] && screenshotPattern.MatchString(goal) {
		return schemas.Action{
			Type:      schemas.ActionScreenshot,
			Rationale: "Goal asks for a capture of the page.",
		}, nil
	}

	if !attempted[schemas.ActionExtractText] && extractPattern.MatchString(goal) {
		return schemas.Action{
			Type:      schemas.ActionExtractText,
			Rationale: "Goal asks to read content from the page.",
		}, nil
	}

	p.logger.Debug("No pattern left to apply, concluding", zap.String("goal", task.Goal))
	return concludeAction("No further actions derivable from the goal.", history), nil
}

// navigationTarget resolves the goal to a URL: explicit URLs win, otherwise a
// known site name maps to its canonical address.
func navigationTarget(goal string) string {
	if m := urlPattern.FindString(goal); m != "" {
		return strings.TrimRight(m, ".,;)")
	}
	if m := websitePattern.FindString(goal); m != "" {
		return fmt.Sprintf("https://www.%s.com", strings.ToLower(m))
	}
	return ""
}

func concludeAction(reason string, history []schemas.AgentStep) schemas.Action {
	executed := 0
	for _, step := range history {
		if step.Outcome == schemas.OutcomeOK {
			executed++
		}
	}
	return schemas.Action{
		Type:      schemas.ActionConclude,
		Value:     fmt.Sprintf("%s Completed %d of %d attempted steps.", reason, executed, len(history)),
		Rationale: reason,
	}
}
