// Package server exposes the agent over REST: submit a task, watch its steps,
// answer approval requests, cancel it. Tasks execute in background goroutines
// over an in-memory store.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/agent"
	"github.com/xkilldash9x/pilot-cli/internal/browser"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/decision"
	"github.com/xkilldash9x/pilot-cli/internal/llmclient"
	"github.com/xkilldash9x/pilot-cli/internal/safety"
)

// Server wires the HTTP surface to the agent components.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *Store
	echo   *echo.Echo
}

// New builds the server and registers its routes.
func New(cfg *config.Config, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		cfg:    cfg,
		logger: logger.Named("server"),
		store:  NewStore(),
		echo:   e,
	}

	e.GET("/healthz", s.handleHealth)
	api := e.Group("/api")
	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks", s.handleListTasks)
	api.GET("/tasks/:id", s.handleGetTask)
	api.DELETE("/tasks/:id", s.handleCancelTask)
	api.GET("/tasks/:id/approval", s.handleGetApproval)
	api.POST("/tasks/:id/approval", s.handleRespondApproval)

	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.Info("REST server listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown cancels all live tasks and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.store.CancelAll()
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying HTTP handler for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// -- Request/Response Payloads --

type createTaskRequest struct {
	Goal           string `json:"goal"`
	MaxIterations  int    `json:"max_iterations"`
	UseRealBrowser *bool  `json:"use_real_browser"`
}

type taskSummary struct {
	ID        string            `json:"id"`
	Goal      string            `json:"goal"`
	State     schemas.LoopState `json:"state"`
	CreatedAt time.Time         `json:"created_at"`
}

type taskDetail struct {
	taskSummary
	MaxIterations int                 `json:"max_iterations"`
	Result        *schemas.TaskResult `json:"result,omitempty"`
}

type approvalResponse struct {
	Approved bool `json:"approved"`
}

// -- Handlers --

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) handleCreateTask(c echo.Context) error {
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Goal == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "goal must not be empty")
	}

	maxIterations := req.MaxIterations
	if maxIterations == 0 {
		maxIterations = s.cfg.Agent.MaxIterations
	}
	if maxIterations < config.MinIterations || maxIterations > config.MaxIterations {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("max_iterations must be between %d and %d", config.MinIterations, config.MaxIterations))
	}

	useReal := s.cfg.Agent.UseRealBrowser
	if req.UseRealBrowser != nil {
		useReal = *req.UseRealBrowser
	}

	task := schemas.Task{
		ID:             uuid.NewString(),
		Goal:           req.Goal,
		MaxIterations:  maxIterations,
		UseRealBrowser: useReal,
		CreatedAt:      time.Now().UTC(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	record := &TaskRecord{Task: task, Cancel: cancel}
	record.SetState(schemas.StateRunning)
	s.store.Add(record)

	go s.runTask(ctx, record)

	s.logger.Info("Task accepted",
		zap.String("task_id", task.ID),
		zap.String("goal", task.Goal),
		zap.Bool("real_browser", useReal))
	return c.JSON(http.StatusCreated, summarize(record))
}

func (s *Server) handleListTasks(c echo.Context) error {
	records := s.store.List()
	out := make([]taskSummary, 0, len(records))
	for _, record := range records {
		out = append(out, summarize(record))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetTask(c echo.Context) error {
	record, ok := s.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	return c.JSON(http.StatusOK, taskDetail{
		taskSummary:   summarize(record),
		MaxIterations: record.Task.MaxIterations,
		Result:        record.Result(),
	})
}

func (s *Server) handleCancelTask(c echo.Context) error {
	record, ok := s.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	if record.State().Terminal() {
		return echo.NewHTTPError(http.StatusConflict, "task already finished")
	}
	record.Cancel()
	s.logger.Info("Task cancelled via API", zap.String("task_id", record.Task.ID))
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleGetApproval(c echo.Context) error {
	record, ok := s.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	pending := record.Pending()
	if pending == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no approval pending")
	}
	return c.JSON(http.StatusOK, pending)
}

func (s *Server) handleRespondApproval(c echo.Context) error {
	record, ok := s.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}

	var req approvalResponse
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !record.Respond(req.Approved) {
		return echo.NewHTTPError(http.StatusNotFound, "no approval pending")
	}
	return c.JSON(http.StatusOK, map[string]bool{"accepted": true})
}

// -- Task Execution --

// runTask assembles per-task components and drives the loop to completion.
func (s *Server) runTask(ctx context.Context, record *TaskRecord) {
	defer record.Cancel()

	task := record.Task
	logger := s.logger.With(zap.String("task_id", task.ID))

	executor, err := browser.NewExecutor(task.UseRealBrowser, s.cfg.Browser, logger)
	if err != nil {
		logger.Error("Failed to start browser executor", zap.Error(err))
		record.SetResult(schemas.TaskResult{
			TaskID: task.ID,
			State:  schemas.StateFailed,
			Error:  err.Error(),
		})
		return
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := executor.Close(closeCtx); err != nil {
			logger.Warn("Executor close failed", zap.Error(err))
		}
	}()

	fallback := decision.NewRulesProvider(logger)
	var primary decision.Provider = fallback
	if s.cfg.LLM.Configured() {
		client, err := llmclient.NewClient(s.cfg.LLM, logger)
		if err != nil {
			logger.Warn("LLM client unavailable, running rule-based only", zap.Error(err))
		} else {
			primary = decision.NewLLMProvider(client, s.cfg.Agent.HistoryLookback, logger)
		}
	}

	gate := newRESTGate(record, s.cfg.Server.ApprovalTimeout, logger)
	loop := agent.New(
		safety.NewClassifier(s.cfg.Agent.EnableSafetyChecks),
		primary, fallback,
		executor, gate,
		logger,
	)
	loop.OnStateChange(record.SetState)

	result := loop.Run(ctx, task)
	record.SetResult(result)
	logger.Info("Task finished",
		zap.String("state", string(result.State)),
		zap.Int("iterations", result.Iterations))
}

func summarize(record *TaskRecord) taskSummary {
	return taskSummary{
		ID:        record.Task.ID,
		Goal:      record.Task.Goal,
		State:     record.State(),
		CreatedAt: record.Task.CreatedAt,
	}
}
