package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/agent"
	"github.com/xkilldash9x/pilot-cli/internal/browser"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/decision"
	"github.com/xkilldash9x/pilot-cli/internal/llmclient"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
	"github.com/xkilldash9x/pilot-cli/internal/safety"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Runs a single browser automation task for the given goal",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their corresponding Viper keys so that command-line
			// flags correctly override values from the config file and environment.
			if err := viper.BindPFlag("agent.max_iterations", cmd.Flags().Lookup("max-iterations")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.use_real_browser", cmd.Flags().Lookup("real-browser")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-resolve the config so the flag overrides bound in PreRunE apply
			// with the right precedence.
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			task := schemas.Task{
				ID:             uuid.New().String(),
				Goal:           args[0],
				MaxIterations:  cfg.Agent.MaxIterations,
				UseRealBrowser: cfg.Agent.UseRealBrowser,
				CreatedAt:      time.Now().UTC(),
			}

			logger.Info("Starting task",
				zap.String("task_id", task.ID),
				zap.String("goal", task.Goal),
				zap.Int("max_iterations", task.MaxIterations),
				zap.Bool("real_browser", task.UseRealBrowser),
			)

			result, err := runTask(ctx, cfg, task, logger)
			if err != nil {
				return err
			}

			printResult(cmd.OutOrStdout(), result)
			if result.State == schemas.StateFailed {
				return fmt.Errorf("task failed: %s", result.Error)
			}
			return nil
		},
	}

	runCmd.Flags().IntP("max-iterations", "n", 0, "Maximum perceive/decide/act iterations. (Overrides config/env)")
	runCmd.Flags().Bool("real-browser", false, "Drive a real Chrome instance instead of the simulated browser. (Overrides config/env)")

	return runCmd
}

// runTask assembles the per-task components and drives the loop to completion.
func runTask(ctx context.Context, cfg *config.Config, task schemas.Task, logger *zap.Logger) (schemas.TaskResult, error) {
	executor, err := browser.NewExecutor(task.UseRealBrowser, cfg.Browser, logger)
	if err != nil {
		return schemas.TaskResult{}, fmt.Errorf("failed to initialize browser executor: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := executor.Close(closeCtx); err != nil {
			logger.Warn("Error during executor shutdown", zap.Error(err))
		}
	}()

	fallback := decision.NewRulesProvider(logger)
	var primary decision.Provider = fallback
	if cfg.LLM.Configured() {
		client, err := llmclient.NewClient(cfg.LLM, logger)
		if err != nil {
			logger.Warn("LLM client unavailable, running rule-based only", zap.Error(err))
		} else {
			primary = decision.NewLLMProvider(client, cfg.Agent.HistoryLookback, logger)
		}
	} else {
		logger.Info("No LLM API key configured, running rule-based only")
	}

	classifier := safety.NewClassifier(cfg.Agent.EnableSafetyChecks)
	gate := newConsoleGate(os.Stdin, os.Stderr)

	loop := agent.New(classifier, primary, fallback, executor, gate, logger)
	loop.OnStateChange(func(state schemas.LoopState) {
		logger.Debug("Task state changed", zap.String("state", string(state)))
	})

	return loop.Run(ctx, task), nil
}

func printResult(w io.Writer, result schemas.TaskResult) {
	fmt.Fprintf(w, "\nTask %s finished: %s\n", result.TaskID, result.State)
	if result.Summary != "" {
		fmt.Fprintf(w, "Summary: %s\n", result.Summary)
	}
	if result.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", result.Error)
	}
	for _, step := range result.Steps {
		line := fmt.Sprintf("  %2d. [%s] %s", step.Index+1, step.Outcome, step.Action.Type)
		if step.Action.Selector != "" {
			line += " " + step.Action.Selector
		}
		if step.Action.Type == schemas.ActionNavigate && step.Action.Value != "" {
			line += " " + step.Action.Value
		}
		fmt.Fprintln(w, line)
	}
}

// consoleGate asks the operator on the terminal before a flagged action runs.
type consoleGate struct {
	in  io.Reader
	out io.Writer
}

func newConsoleGate(in io.Reader, out io.Writer) *consoleGate {
	return &consoleGate{in: in, out: out}
}

// Request prints the approval prompt and blocks until the operator answers
// or the context is cancelled. Anything other than an explicit yes rejects.
func (g *consoleGate) Request(ctx context.Context, approval schemas.PendingApproval) (bool, error) {
	fmt.Fprintf(g.out, "\n[APPROVAL REQUIRED] %s\nProceed? [y/N]: ", approval.Message)

	answerCh := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(g.in)
		if scanner.Scan() {
			answerCh <- scanner.Text()
			return
		}
		// Stdin closed; treat as a rejection.
		answerCh <- ""
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case answer := <-answerCh:
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
