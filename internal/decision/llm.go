// internal/decision/llm.go
package decision

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

const systemPrompt = `You are a browser automation agent. You are given a task goal, the
steps taken so far, and the current page state. Decide the single next action.

Available Action Types:
    - NAVIGATE: Go to a URL. (Params: value = full URL)
    - CLICK: Click an element. (Params: selector)
    - TYPE: Type text into a field. (Params: selector, value = text)
    - SCREENSHOT: Capture the current page. (No params)
    - EXTRACT_TEXT: Read text from the page. (Params: selector, optional)
    - CONCLUDE: Finish the task. (Params: value = final summary)

Rules:
    - If a previous step failed, analyze its error and try a different selector or approach.
    - Use CONCLUDE once the goal is met or cannot be met.
    - Include a short "rationale" explaining the choice.

Respond with a single JSON object, for example:
{"type": "CLICK", "selector": "#search-button", "rationale": "Submitting the search form."}
Your response must be only the JSON for your chosen action.`

// stepContext is the serialized view of a past step that goes into the prompt.
type stepContext struct {
	Index     int    `json:"index"`
	Action    string `json:"action"`
	Selector  string `json:"selector,omitempty"`
	Value     string `json:"value,omitempty"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
	PageURL   string `json:"page_url,omitempty"`
	PageTitle string `json:"page_title,omitempty"`
}

// LLMProvider asks an LLM for the next action. It holds no mutable state; the
// same provider instance serves concurrent tasks.
type LLMProvider struct {
	client   schemas.LLMClient
	logger   *zap.Logger
	lookback int
}

var _ Provider = (*LLMProvider)(nil)

// NewLLMProvider builds a provider over the given client. lookback bounds how
// many trailing steps are serialized into the prompt; values < 1 fall back to 10.
func NewLLMProvider(client schemas.LLMClient, lookback int, logger *zap.Logger) *LLMProvider {
	if lookback < 1 {
		lookback = 10
	}
	return &LLMProvider{
		client:   client,
		logger:   logger.Named("decision.llm"),
		lookback: lookback,
	}
}

func (p *LLMProvider) Name() string { return "llm" }

// Decide serializes the task state into a prompt, calls the LLM, and parses
// the returned action. Transport failures wrap ErrProviderUnavailable;
// malformed output wraps ErrUnparseableResponse.
func (p *LLMProvider) Decide(ctx context.Context, task schemas.Task, history []schemas.AgentStep, page *schemas.PageState) (schemas.Action, error) {
	userPrompt, err := p.buildUserPrompt(task, history, page)
	if err != nil {
		return schemas.Action{}, fmt.Errorf("%w: %v", ErrUnparseableResponse, err)
	}

	response, err := p.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Options: schemas.GenerationOptions{
			Temperature:     0.2,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return schemas.Action{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	action, err := p.parseActionResponse(response)
	if err != nil {
		return schemas.Action{}, fmt.Errorf("%w: %v", ErrUnparseableResponse, err)
	}
	return action, nil
}

func (p *LLMProvider) buildUserPrompt(task schemas.Task, history []schemas.AgentStep, page *schemas.PageState) (string, error) {
	recent := history
	if len(recent) > p.lookback {
		recent = recent[len(recent)-p.lookback:]
	}

	steps := make([]stepContext, 0, len(recent))
	for _, step := range recent {
		sc := stepContext{
			Index:    step.Index,
			Action:   string(step.Action.Type),
			Selector: step.Action.Selector,
			Value:    step.Action.Value,
			Outcome:  string(step.Outcome),
			Error:    step.Error,
		}
		if step.Page.URL != "" {
			sc.PageURL = step.Page.URL
			sc.PageTitle = step.Page.Title
		}
		steps = append(steps, sc)
	}

	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return "", fmt.Errorf("failed to marshal step history: %w", err)
	}

	var pageBlock string
	if page != nil {
		pageBlock = fmt.Sprintf("URL: %s\nTitle: %s\nVisible text (excerpt):\n%s", page.URL, page.Title, page.TextExcerpt)
	} else {
		pageBlock = "No page loaded yet."
	}

	return fmt.Sprintf(`Task Goal: %s

Steps so far (JSON):
%s

Current Page State:
%s

Determine the next Action. Respond with a single JSON object.`, task.Goal, string(stepsJSON), pageBlock), nil
}

// A regex to robustly extract a JSON object from a markdown code block.
var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// parseActionResponse extracts an Action from the LLM's response, handling
// markdown code blocks or raw JSON.
func (p *LLMProvider) parseActionResponse(response string) (schemas.Action, error) {
	response = strings.TrimSpace(response)
	var action schemas.Action
	var jsonStringToParse string

	matches := jsonBlockRegex.FindStringSubmatch(response)
	if len(matches) > 1 {
		jsonStringToParse = strings.TrimSpace(matches[1])
	} else {
		firstBracket := strings.Index(response, "{")
		lastBracket := strings.LastIndex(response, "}")
		if firstBracket != -1 && lastBracket != -1 && lastBracket > firstBracket {
			jsonStringToParse = response[firstBracket : lastBracket+1]
		} else {
			jsonStringToParse = response
		}
	}

	if jsonStringToParse == "" {
		return schemas.Action{}, fmt.Errorf("could not find any JSON in the LLM response")
	}

	if err := json.Unmarshal([]byte(jsonStringToParse), &action); err != nil {
		p.logger.Warn("Failed to unmarshal LLM response",
			zap.String("raw_response", response),
			zap.String("extracted_json", jsonStringToParse),
			zap.Error(err))
		return schemas.Action{}, fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}

	if action.Type == "" {
		return schemas.Action{}, fmt.Errorf("LLM response missing required 'type' field after successful JSON parsing")
	}
	if !validActionType(action.Type) {
		return schemas.Action{}, fmt.Errorf("LLM response contains unknown action type %q", action.Type)
	}
	return action, nil
}

func validActionType(t schemas.ActionType) bool {
	switch t {
	case schemas.ActionNavigate, schemas.ActionClick, schemas.ActionTypeText,
		schemas.ActionScreenshot, schemas.ActionExtractText, schemas.ActionConclude:
		return true
	}
	return false
}
