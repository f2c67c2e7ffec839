package decision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

func ruleTask(goal string) schemas.Task {
	return schemas.Task{ID: "task-1", Goal: goal, MaxIterations: 10}
}

func TestRulesDecide_ExplicitURL(t *testing.T) {
	provider := NewRulesProvider(testLogger(t))

	action, err := provider.Decide(context.Background(), ruleTask("open https://example.com/docs and read the title"), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, schemas.ActionNavigate, action.Type)
	assert.Equal(t, "https://example.com/docs", action.Value)
}

func TestRulesDecide_KnownWebsiteMention(t *testing.T) {
	provider := NewRulesProvider(testLogger(t))

	action, err := provider.Decide(context.Background(), ruleTask("go to Wikipedia and read about Go"), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, schemas.ActionNavigate, action.Type)
	assert.Equal(t, "https://www.wikipedia.com", action.Value)
}

func TestRulesDecide_FinishGoalConcludes(t *testing.T) {
	provider := NewRulesProvider(testLogger(t))

	action, err := provider.Decide(context.Background(), ruleTask("finish"), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, schemas.ActionConclude, action.Type)
}

func TestRulesDecide_TypedTextExtraction(t *testing.T) {
	provider := NewRulesProvider(testLogger(t))

	history := []schemas.AgentStep{
		{Action: schemas.Action{Type: schemas.ActionNavigate}, Outcome: schemas.OutcomeOK},
	}
	page := &schemas.PageState{TextExcerpt: "Search input field below"}

	action, err := provider.Decide(context.Background(), ruleTask(`search for "llm agents" on google`), history, page)

	require.NoError(t, err)
	assert.Equal(t, schemas.ActionTypeText, action.Type)
	assert.Equal(t, "llm agents", action.Value)
	assert.Contains(t, action.Selector, "input")
}

func TestRulesDecide_ClickAfterEarlierSteps(t *testing.T) {
	provider := NewRulesProvider(testLogger(t))

	history := []schemas.AgentStep{
		{Action: schemas.Action{Type: schemas.ActionNavigate}, Outcome: schemas.OutcomeOK},
		{Action: schemas.Action{Type: schemas.ActionTypeText}, Outcome: schemas.OutcomeOK},
	}

	action, err := provider.Decide(context.Background(), ruleTask(`search for "news" on google and click the first result`), history, nil)

	require.NoError(t, err)
	assert.Equal(t, schemas.ActionClick, action.Type)
}

func TestRulesDecide_Deterministic(t *testing.T) {
	provider := NewRulesProvider(testLogger(t))
	task := ruleTask("take a screenshot of github")

	first, err := provider.Decide(context.Background(), task, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := provider.Decide(context.Background(), task, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

// The provider must always run out of applicable rules: every action class
// fires at most once, so repeated calls with accumulated history conclude.
func TestRulesDecide_AlwaysReachesConclude(t *testing.T) {
	provider := NewRulesProvider(testLogger(t))
	task := ruleTask(`go to amazon, search for "mechanical keyboard", click the first result and take a screenshot`)

	var history []schemas.AgentStep
	var concluded bool
	for i := 0; i < 10; i++ {
		action, err := provider.Decide(context.Background(), task, history, nil)
		require.NoError(t, err)
		if action.Type == schemas.ActionConclude {
			concluded = true
			break
		}
		history = append(history, schemas.AgentStep{
			Index:   i,
			Action:  action,
			Outcome: schemas.OutcomeOK,
		})
	}

	assert.True(t, concluded, "rule provider never concluded within 10 iterations")
	assert.NotEmpty(t, history, "expected some actions before concluding")
}

func TestRulesDecide_UnmatchedGoalConcludesWithSummary(t *testing.T) {
	provider := NewRulesProvider(testLogger(t))

	history := []schemas.AgentStep{
		{Action: schemas.Action{Type: schemas.ActionNavigate}, Outcome: schemas.OutcomeOK},
		{Action: schemas.Action{Type: schemas.ActionClick}, Outcome: schemas.OutcomeFailed},
	}

	action, err := provider.Decide(context.Background(), ruleTask("do something inscrutable"), history, nil)

	require.NoError(t, err)
	assert.Equal(t, schemas.ActionConclude, action.Type)
	assert.Contains(t, action.Value, "1 of 2")
}
