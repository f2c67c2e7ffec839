package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

const searchPageHTML = `<html>
<head><title>Search - TestEngine</title></head>
<body>
  <form id="search-form">
    <input id="query" type="text" name="q">
    <button id="go" type="submit">Search</button>
  </form>
  <a id="first-result" href="https://result.test/page">First result</a>
  <div class="sidebar">Sidebar text</div>
</body>
</html>`

const resultPageHTML = `<html>
<head><title>Result Page</title></head>
<body><article>The answer is 42.</article></body>
</html>`

func simFixtures() map[string]string {
	return map[string]string{
		"https://search.test/":     searchPageHTML,
		"https://result.test/page": resultPageHTML,
	}
}

func newSim(t *testing.T) *SimExecutor {
	t.Helper()
	return NewSimExecutor(simFixtures(), zaptest.NewLogger(t))
}

func TestSimNavigate_Fixture(t *testing.T) {
	sim := newSim(t)

	state, err := sim.Execute(context.Background(), schemas.Action{
		Type:  schemas.ActionNavigate,
		Value: "https://search.test/",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://search.test/", state.URL)
	assert.Equal(t, "Search - TestEngine", state.Title)
	assert.Contains(t, state.TextExcerpt, "First result")
	assert.False(t, state.CapturedAt.IsZero())
}

func TestSimNavigate_UnknownURLSynthesizesPage(t *testing.T) {
	sim := newSim(t)

	state, err := sim.Execute(context.Background(), schemas.Action{
		Type:  schemas.ActionNavigate,
		Value: "https://nowhere.test/",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://nowhere.test/", state.URL)
	assert.Contains(t, state.TextExcerpt, "Simulated page")
}

func TestSimClick_AnchorFollowsHref(t *testing.T) {
	sim := newSim(t)

	_, err := sim.Execute(context.Background(), schemas.Action{Type: schemas.ActionNavigate, Value: "https://search.test/"})
	require.NoError(t, err)

	state, err := sim.Execute(context.Background(), schemas.Action{
		Type:     schemas.ActionClick,
		Selector: "#first-result",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://result.test/page", state.URL)
	assert.Equal(t, "Result Page", state.Title)
}

func TestSimClick_ElementNotFound(t *testing.T) {
	sim := newSim(t)

	_, err := sim.Execute(context.Background(), schemas.Action{Type: schemas.ActionNavigate, Value: "https://search.test/"})
	require.NoError(t, err)

	_, err = sim.Execute(context.Background(), schemas.Action{
		Type:     schemas.ActionClick,
		Selector: "#does-not-exist",
	})

	require.Error(t, err)
	assert.Equal(t, ErrCodeElementNotFound, CodeOf(err))
}

func TestSimType_SelectorAlternatives(t *testing.T) {
	sim := newSim(t)

	_, err := sim.Execute(context.Background(), schemas.Action{Type: schemas.ActionNavigate, Value: "https://search.test/"})
	require.NoError(t, err)

	// The first alternative uses an attribute selector, matching the rule
	// provider's output shape.
	_, err = sim.Execute(context.Background(), schemas.Action{
		Type:     schemas.ActionTypeText,
		Selector: "input[type='text'], textarea",
		Value:    "golang",
	})

	require.NoError(t, err)
	assert.Equal(t, "golang", sim.typed["input[type='text'], textarea"])
}

func TestSimScreenshot(t *testing.T) {
	sim := newSim(t)

	_, err := sim.Execute(context.Background(), schemas.Action{Type: schemas.ActionNavigate, Value: "https://search.test/"})
	require.NoError(t, err)

	state, err := sim.Execute(context.Background(), schemas.Action{Type: schemas.ActionScreenshot})

	require.NoError(t, err)
	assert.Contains(t, state.ScreenshotRef, "sim://")
}

func TestSimExtractText_Scoped(t *testing.T) {
	sim := newSim(t)

	_, err := sim.Execute(context.Background(), schemas.Action{Type: schemas.ActionNavigate, Value: "https://result.test/page"})
	require.NoError(t, err)

	state, err := sim.Execute(context.Background(), schemas.Action{
		Type:     schemas.ActionExtractText,
		Selector: "article",
	})

	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", state.TextExcerpt)
}

func TestSimExecute_AfterCloseReturnsSessionClosed(t *testing.T) {
	sim := newSim(t)
	require.NoError(t, sim.Close(context.Background()))

	_, err := sim.Execute(context.Background(), schemas.Action{Type: schemas.ActionNavigate, Value: "https://search.test/"})

	require.Error(t, err)
	assert.Equal(t, ErrCodeSessionClosed, CodeOf(err))
}

func TestSimExecute_InvalidParameters(t *testing.T) {
	sim := newSim(t)

	_, err := sim.Execute(context.Background(), schemas.Action{Type: schemas.ActionClick})

	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidParameters, CodeOf(err))
}

func TestSelectorToXPath(t *testing.T) {
	cases := map[string]string{
		"#query":             "//*[@id='query']",
		"button#go":          "//button[@id='go']",
		"div.sidebar":        "//div[contains(concat(' ', normalize-space(@class), ' '), ' sidebar ')]",
		"input[type='text']": "//input[@type='text']",
		"article":            "//article",
	}
	for selector, want := range cases {
		got, err := selectorToXPath(selector)
		require.NoError(t, err, "selector %s", selector)
		assert.Equal(t, want, got, "selector %s", selector)
	}
}
