package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/goutham-kaluvakolu/MA-System/config"
	core "github.com/goutham-kaluvakolu/MA-System/internal/agent/core"
	"github.com/goutham-kaluvakolu/MA-System/internal/capability"
)

// TaskRunner is the slice of the orchestrator the HTTP layer needs.
type TaskRunner interface {
	StartRun(ctx context.Context, taskText string, ceiling int) (string, error)
	Status(runID string) (core.RunStatus, error)
}

type RunsHandler struct {
	cfg      *config.Config
	runner   TaskRunner
	registry *capability.Registry
	logger   *log.Logger
}

type CreateRunRequest struct {
	Task             string `json:"task"`
	IterationCeiling int    `json:"iteration_ceiling,omitempty"`
}

type CreateRunResponse struct {
	RunID string `json:"run_id"`
}

func NewRunsHandler(cfg *config.Config, runner TaskRunner, registry *capability.Registry) *RunsHandler {
	return &RunsHandler{
		cfg:      cfg,
		runner:   runner,
		registry: registry,
		logger:   log.New(log.Writer(), "[RUNS] ", log.LstdFlags),
	}
}

func (h *RunsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("/:run_id", h.status)
}

// create accepts a task and launches a background run.
func (h *RunsHandler) create(c echo.Context) error {
	var req CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Task) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task is required")
	}
	if req.IterationCeiling < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "iteration_ceiling must not be negative")
	}
	runID, err := h.runner.StartRun(c.Request().Context(), req.Task, req.IterationCeiling)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Printf("accepted run %s", runID)
	return c.JSON(http.StatusAccepted, CreateRunResponse{RunID: runID})
}

// status returns the tracked state of a run, including the final result
// once the run has finished.
func (h *RunsHandler) status(c echo.Context) error {
	runID := c.Param("run_id")
	st, err := h.runner.Status(runID)
	if err != nil {
		if errors.Is(err, core.ErrUnknownRun) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

// capabilities lists the registered capability cards.
func (h *RunsHandler) capabilities(c echo.Context) error {
	names := h.registry.Names()
	cards := make([]capability.Card, 0, len(names))
	for _, name := range names {
		if card, ok := h.registry.Capability(name); ok {
			cards = append(cards, card)
		}
	}
	return c.JSON(http.StatusOK, cards)
}
