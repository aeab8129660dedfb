package rest

import (
	"sort"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"yqhp/tts-engine/pkg/types"
)

// healthCheck handles GET /health
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// submitRender handles POST /api/v1/render. The call blocks until the
// whole submission has been rendered; it queues on the generation lock
// behind any submission already running.
func (s *Server) submitRender(c *fiber.Ctx) error {
	var req RenderSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to parse request body: " + err.Error(),
		})
	}
	if len(req.Items) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "At least one item is required",
		})
	}

	result := types.NewBatchResult()
	items := make([]types.WorkItem, 0, len(req.Items))
	for i, in := range req.Items {
		if in.Text == "" {
			result.Fail(i, "empty text")
			continue
		}
		item, err := s.voices.BuildItem(i, in.Speaker, in.Text, in.Instruct)
		if err != nil {
			result.Fail(i, err.Error())
			continue
		}
		items = append(items, item)
	}

	start := time.Now()
	rendered, err := s.sched.Submit(c.UserContext(), items)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "render_failed",
			Message: err.Error(),
		})
	}
	result.Merge(rendered)

	resp := RenderSubmitResponse{
		SubmissionID: uuid.NewString(),
		Total:        result.Total(),
		Completed:    append([]int{}, result.Completed...),
		ElapsedMs:    time.Since(start).Milliseconds(),
	}
	sort.Ints(resp.Completed)
	for _, f := range result.Failed {
		resp.Failed = append(resp.Failed, ItemFailureResponse{Index: f.Index, Message: f.Message})
	}
	sort.Slice(resp.Failed, func(i, j int) bool { return resp.Failed[i].Index < resp.Failed[j].Index })
	if s.sink != nil {
		resp.Outputs = make(map[string]string, len(resp.Completed))
		for _, idx := range resp.Completed {
			resp.Outputs[strconv.Itoa(idx)] = s.sink.Path(idx)
		}
	}

	return c.JSON(resp)
}

// getStatus handles GET /api/v1/status
func (s *Server) getStatus(c *fiber.Ctx) error {
	completed, failed, total := s.sched.Progress()
	variant, state := s.sched.ActiveVariant()
	return c.JSON(StatusResponse{
		Completed: completed,
		Failed:    failed,
		Total:     total,
		Variant:   variant,
		State:     state,
	})
}

// reset handles POST /api/v1/reset. Used by external watchdogs to force
// executor eviction after a stall.
func (s *Server) reset(c *fiber.Ctx) error {
	s.sched.TearDown(c.UserContext())
	return c.JSON(ResetResponse{
		Status:    "reset",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// getMetrics handles GET /api/v1/metrics
func (s *Server) getMetrics(c *fiber.Ctx) error {
	if s.reg == nil {
		return c.JSON(map[string]map[string]float64{})
	}
	return c.JSON(s.reg.Report(time.Since(s.started).Seconds()))
}
