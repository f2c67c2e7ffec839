// Package safety classifies proposed browser actions before execution.
// Classification is pure and deterministic; destructive actions are routed
// through a human approval gate by the agent loop, never blocked outright.
package safety

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// Verdict is the result of classifying a single action.
type Verdict string

const (
	VerdictSafe        Verdict = "SAFE"
	VerdictDestructive Verdict = "DESTRUCTIVE"
)

// destructiveKeywords flags actions whose rendered description mentions an
// irreversible operation. Matching is substring based and case insensitive.
var destructiveKeywords = []string{
	"pay",
	"delete",
	"checkout",
	"purchase",
	"buy",
	"submit payment",
	"confirm order",
	"transfer",
	"send money",
	"authorize payment",
	"complete transaction",
	"finalize purchase",
}

// clickSelectorKeywords catches payment flows targeted by a CLICK even when
// the rationale says nothing suspicious.
var clickSelectorKeywords = []string{"pay", "checkout", "purchase", "submit"}

// typeTextKeywords catches sensitive data being typed into a field.
var typeTextKeywords = []string{"password", "credit", "card", "ssn", "social"}

// Classifier inspects actions for destructive intent. The zero value is not
// usable; construct one with NewClassifier.
type Classifier struct {
	enabled bool
}

// NewClassifier returns a classifier. When enabled is false every action
// classifies as safe.
func NewClassifier(enabled bool) *Classifier {
	return &Classifier{enabled: enabled}
}

// Classify returns the verdict for a proposed action. It never fails and is
// idempotent: the same action always yields the same verdict. Unrecognized
// action shapes default to safe.
func (c *Classifier) Classify(action schemas.Action) Verdict {
	if !c.enabled {
		return VerdictSafe
	}

	switch action.Type {
	case schemas.ActionClick:
		if containsAny(action.Selector, clickSelectorKeywords) {
			return VerdictDestructive
		}
	case schemas.ActionTypeText:
		if containsAny(action.Value, typeTextKeywords) {
			return VerdictDestructive
		}
	}

	if containsAny(describe(action), destructiveKeywords) {
		return VerdictDestructive
	}
	return VerdictSafe
}

// ApprovalMessage renders a human readable summary of the action for the
// approval prompt.
func (c *Classifier) ApprovalMessage(action schemas.Action) string {
	switch action.Type {
	case schemas.ActionClick:
		sel := action.Selector
		if sel == "" {
			sel = "unknown element"
		}
		return fmt.Sprintf("Click on element: %s", sel)
	case schemas.ActionTypeText:
		sel := action.Selector
		if sel == "" {
			sel = "unknown field"
		}
		preview := action.Value
		if len(preview) > 50 {
			preview = preview[:50]
		}
		return fmt.Sprintf("Type text into %s: %q", sel, preview)
	case schemas.ActionNavigate:
		target := action.Value
		if target == "" {
			target = "unknown site"
		}
		return fmt.Sprintf("Navigate to: %s", target)
	default:
		return fmt.Sprintf("Execute %s (selector=%q value=%q)", action.Type, action.Selector, action.Value)
	}
}

// describe flattens an action into the free text the keyword scan runs over.
func describe(action schemas.Action) string {
	return strings.Join([]string{string(action.Type), action.Selector, action.Value, action.Rationale}, " ")
}

func containsAny(s string, keywords []string) bool {
	s = strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
