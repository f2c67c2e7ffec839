package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// The run command drives the whole loop against the simulated browser when no
// real browser is requested and no LLM key is configured.
func TestRunCmd_SimulatedTask(t *testing.T) {
	out, err := execRoot(t, "run", "open https://example.com/docs and read the page title")
	require.NoError(t, err)
	assert.Contains(t, out, "finished: DONE")
	assert.Contains(t, out, "NAVIGATE")
}

func TestRunCmd_RequiresGoal(t *testing.T) {
	_, err := execRoot(t, "run")
	require.Error(t, err)
}

func TestRunCmd_RejectsBadIterationBound(t *testing.T) {
	_, err := execRoot(t, "run", "do something", "--max-iterations", "100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_iterations")
}

func TestConsoleGate_Approve(t *testing.T) {
	var out strings.Builder
	gate := newConsoleGate(strings.NewReader("y\n"), &out)

	ok, err := gate.Request(context.Background(), schemas.PendingApproval{Message: "Click on element 'buy'"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "APPROVAL REQUIRED")
	assert.Contains(t, out.String(), "Click on element 'buy'")
}

func TestConsoleGate_RejectByDefault(t *testing.T) {
	for _, answer := range []string{"n\n", "\n", "whatever\n", ""} {
		var out strings.Builder
		gate := newConsoleGate(strings.NewReader(answer), &out)

		ok, err := gate.Request(context.Background(), schemas.PendingApproval{Message: "m"})
		require.NoError(t, err)
		assert.False(t, ok, "answer %q should reject", answer)
	}
}

func TestConsoleGate_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var out strings.Builder
	// A blocking reader: the pipe never produces input.
	blocked := make(chan struct{})
	gate := newConsoleGate(blockingReader{unblock: blocked}, &out)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	ok, err := gate.Request(ctx, schemas.PendingApproval{Message: "m"})
	close(blocked)

	assert.False(t, ok)
	require.ErrorIs(t, err, context.Canceled)
}

type blockingReader struct {
	unblock chan struct{}
}

func (r blockingReader) Read(p []byte) (int, error) {
	<-r.unblock
	return 0, nil
}
