package decision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// MockLLMClient is a mock implementation of the LLMClient interface for testing.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func testLogger(t *testing.T) *zap.Logger {
	t.Helper()
	core, _ := observer.New(zap.DebugLevel)
	return zap.New(core)
}

func testTask() schemas.Task {
	return schemas.Task{
		ID:            "task-1",
		Goal:          "search for golang tutorials on google",
		MaxIterations: 5,
	}
}

func TestLLMDecide_RawJSON(t *testing.T) {
	client := new(MockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).
		Return(`{"type": "NAVIGATE", "value": "https://www.google.com", "rationale": "Start at the search engine."}`, nil)

	provider := NewLLMProvider(client, 10, testLogger(t))

	action, err := provider.Decide(context.Background(), testTask(), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, schemas.ActionNavigate, action.Type)
	assert.Equal(t, "https://www.google.com", action.Value)
	client.AssertExpectations(t)
}

func TestLLMDecide_MarkdownBlock(t *testing.T) {
	response := "Here is the plan:\n```json\n{\"type\": \"CLICK\", \"selector\": \"#search\"}\n```\nProceed."
	client := new(MockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).Return(response, nil)

	provider := NewLLMProvider(client, 10, testLogger(t))

	action, err := provider.Decide(context.Background(), testTask(), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, schemas.ActionClick, action.Type)
	assert.Equal(t, "#search", action.Selector)
}

func TestLLMDecide_TransportFailure(t *testing.T) {
	client := new(MockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	provider := NewLLMProvider(client, 10, testLogger(t))

	_, err := provider.Decide(context.Background(), testTask(), nil, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
	assert.False(t, errors.Is(err, ErrUnparseableResponse))
}

func TestLLMDecide_UnparseableResponse(t *testing.T) {
	cases := map[string]string{
		"prose only":      "I think we should click the button.",
		"missing type":    `{"selector": "#go"}`,
		"unknown type":    `{"type": "TELEPORT", "value": "mars"}`,
		"corrupted json":  "```json\n{\"type\": \"CLICK\",\n```",
		"empty response":  "",
	}

	for name, response := range cases {
		t.Run(name, func(t *testing.T) {
			client := new(MockLLMClient)
			client.On("Generate", mock.Anything, mock.Anything).Return(response, nil)

			provider := NewLLMProvider(client, 10, testLogger(t))

			_, err := provider.Decide(context.Background(), testTask(), nil, nil)

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnparseableResponse), "expected ErrUnparseableResponse, got: %v", err)
		})
	}
}

func TestLLMDecide_PromptIncludesHistoryAndPage(t *testing.T) {
	var captured schemas.GenerationRequest
	client := new(MockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(schemas.GenerationRequest)
		}).
		Return(`{"type": "CONCLUDE", "value": "done"}`, nil)

	provider := NewLLMProvider(client, 10, testLogger(t))

	history := []schemas.AgentStep{
		{
			Index:   0,
			Action:  schemas.Action{Type: schemas.ActionNavigate, Value: "https://example.com"},
			Outcome: schemas.OutcomeOK,
			Page:    schemas.PageState{URL: "https://example.com", Title: "Example Domain"},
		},
		{
			Index:   1,
			Action:  schemas.Action{Type: schemas.ActionClick, Selector: "#missing"},
			Outcome: schemas.OutcomeFailed,
			Error:   "ELEMENT_NOT_FOUND: no node matches selector",
		},
	}
	page := &schemas.PageState{URL: "https://example.com", Title: "Example Domain", TextExcerpt: "Example text"}

	_, err := provider.Decide(context.Background(), testTask(), history, page)

	require.NoError(t, err)
	assert.True(t, captured.Options.ForceJSONFormat)
	assert.Contains(t, captured.UserPrompt, "search for golang tutorials")
	assert.Contains(t, captured.UserPrompt, "ELEMENT_NOT_FOUND")
	assert.Contains(t, captured.UserPrompt, "Example Domain")
}

func TestLLMDecide_HistoryLookbackTruncates(t *testing.T) {
	var captured schemas.GenerationRequest
	client := new(MockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(schemas.GenerationRequest)
		}).
		Return(`{"type": "CONCLUDE", "value": "done"}`, nil)

	provider := NewLLMProvider(client, 2, testLogger(t))

	history := make([]schemas.AgentStep, 6)
	for i := range history {
		history[i] = schemas.AgentStep{
			Index:   i,
			Action:  schemas.Action{Type: schemas.ActionNavigate, Value: "https://example.com"},
			Outcome: schemas.OutcomeOK,
		}
	}

	_, err := provider.Decide(context.Background(), testTask(), history, nil)

	require.NoError(t, err)
	// Only the trailing two steps should survive the lookback window.
	assert.NotContains(t, captured.UserPrompt, `"index":3`)
	assert.Contains(t, captured.UserPrompt, `"index":4`)
	assert.Contains(t, captured.UserPrompt, `"index":5`)
}
