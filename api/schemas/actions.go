package schemas

import "time"

// ActionType is an enumeration of the browser operations the agent can decide
// to perform. This provides a structured vocabulary for the decision layer.
type ActionType string

const (
	ActionNavigate    ActionType = "NAVIGATE"     // Navigates to a URL.
	ActionClick       ActionType = "CLICK"        // Clicks on a UI element.
	ActionTypeText    ActionType = "TYPE"         // Types text into an input field.
	ActionScreenshot  ActionType = "SCREENSHOT"   // Captures a screenshot of the page.
	ActionExtractText ActionType = "EXTRACT_TEXT" // Extracts visible text from the page or an element.
	ActionConclude    ActionType = "CONCLUDE"     // Concludes the task; the loop treats this as the "done" verdict.
)

// Action represents a single, concrete step decided upon by a decision
// provider. It includes the operation, its parameters, and the provider's
// reasoning behind the decision.
type Action struct {
	Type ActionType `json:"type"`

	// Selector is the target element for CLICK, TYPE and EXTRACT_TEXT. For
	// EXTRACT_TEXT an empty selector means the whole page.
	Selector string `json:"selector,omitempty"`

	// Value carries the URL for NAVIGATE, the text for TYPE, and the final
	// summary for CONCLUDE.
	Value string `json:"value,omitempty"`

	// Rationale is a concise justification for why this action was chosen.
	// Invaluable for debugging and for the approval prompt shown to humans.
	Rationale string `json:"rationale,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// IsTerminal reports whether the action ends the task rather than driving the
// browser.
func (a Action) IsTerminal() bool {
	return a.Type == ActionConclude
}
