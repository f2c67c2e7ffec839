package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

func TestClassify_DefaultSafe(t *testing.T) {
	c := NewClassifier(true)

	action := schemas.Action{
		Type:      schemas.ActionNavigate,
		Value:     "https://example.com/docs",
		Rationale: "open the documentation page",
	}
	assert.Equal(t, VerdictSafe, c.Classify(action))
}

func TestClassify_DestructiveKeywordInRationale(t *testing.T) {
	c := NewClassifier(true)

	action := schemas.Action{
		Type:      schemas.ActionClick,
		Selector:  "#confirm",
		Rationale: "confirm order and complete the flow",
	}
	assert.Equal(t, VerdictDestructive, c.Classify(action))
}

func TestClassify_ClickSelectorKeywords(t *testing.T) {
	c := NewClassifier(true)

	cases := map[string]Verdict{
		"#checkout-button":  VerdictDestructive,
		"button.submit":     VerdictDestructive,
		"a[href='/pay']":    VerdictDestructive,
		"#search-results a": VerdictSafe,
	}
	for selector, want := range cases {
		got := c.Classify(schemas.Action{Type: schemas.ActionClick, Selector: selector})
		assert.Equal(t, want, got, "selector %s", selector)
	}
}

func TestClassify_TypeTextSensitiveValues(t *testing.T) {
	c := NewClassifier(true)

	destructive := schemas.Action{
		Type:     schemas.ActionTypeText,
		Selector: "#cc-number",
		Value:    "my credit card number",
	}
	assert.Equal(t, VerdictDestructive, c.Classify(destructive))

	benign := schemas.Action{
		Type:     schemas.ActionTypeText,
		Selector: "#search",
		Value:    "golang tutorials",
	}
	assert.Equal(t, VerdictSafe, c.Classify(benign))
}

func TestClassify_Idempotent(t *testing.T) {
	c := NewClassifier(true)

	action := schemas.Action{
		Type:     schemas.ActionClick,
		Selector: "#purchase-now",
	}
	first := c.Classify(action)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify(action))
	}
}

func TestClassify_DisabledAlwaysSafe(t *testing.T) {
	c := NewClassifier(false)

	action := schemas.Action{
		Type:      schemas.ActionClick,
		Selector:  "#checkout",
		Rationale: "authorize payment",
	}
	assert.Equal(t, VerdictSafe, c.Classify(action))
}

func TestApprovalMessage(t *testing.T) {
	c := NewClassifier(true)

	msg := c.ApprovalMessage(schemas.Action{Type: schemas.ActionClick, Selector: "#pay"})
	assert.Equal(t, "Click on element: #pay", msg)

	msg = c.ApprovalMessage(schemas.Action{Type: schemas.ActionTypeText, Selector: "#field", Value: "secret password"})
	assert.Contains(t, msg, "#field")
	assert.Contains(t, msg, "secret password")

	msg = c.ApprovalMessage(schemas.Action{Type: schemas.ActionNavigate, Value: "https://shop.test/checkout"})
	assert.Contains(t, msg, "https://shop.test/checkout")
}
