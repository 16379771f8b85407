package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
	"github.com/ManuelReschke/SignFlow/internal/pkg/jobqueue"
	"github.com/ManuelReschke/SignFlow/internal/pkg/signature"
)

// TaskRequest is the body an external dispatcher pushes to the task endpoints
type TaskRequest struct {
	EventID string `json:"eventId"`
}

// QueueStats is the read side of the job queue shown on the stats endpoint
type QueueStats interface {
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
	GetDelayedSize(ctx context.Context) (int64, error)
}

// SweepLocker runs fn under the lock shared with the scheduled sweep
type SweepLocker interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// TaskController exposes the task handlers and the sweep over HTTP
type TaskController struct {
	handler    *signature.TaskHandler
	reconciler *signature.Reconciler
	service    *signature.Service
	queue      QueueStats
	lock       SweepLocker
}

func NewTaskController(handler *signature.TaskHandler, reconciler *signature.Reconciler, service *signature.Service, queue QueueStats, lock SweepLocker) *TaskController {
	return &TaskController{handler: handler, reconciler: reconciler, service: service, queue: queue, lock: lock}
}

func (tc *TaskController) HandleSend(c *fiber.Ctx) error {
	return tc.run(c, tc.handler.HandleSend)
}

func (tc *TaskController) HandleCheckStatus(c *fiber.Ctx) error {
	return tc.run(c, tc.handler.HandleCheckStatus)
}

func (tc *TaskController) HandleUpload(c *fiber.Ctx) error {
	return tc.run(c, tc.handler.HandleUpload)
}

// run answers 200 for handled and for dropped tasks. Only failures worth redelivering get an
// error status, since push dispatchers retry every non-2xx response.
func (tc *TaskController) run(c *fiber.Ctx, fn func(ctx context.Context, eventID string) error) error {
	var req TaskRequest
	if err := c.BodyParser(&req); err != nil || req.EventID == "" {
		return badRequest(c, "eventId is required")
	}

	err := fn(c.UserContext(), req.EventID)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"event_id": req.EventID, "outcome": "ok"})
	case !apperrors.Retryable(err):
		return c.JSON(fiber.Map{
			"event_id": req.EventID,
			"outcome":  "dropped",
			"error":    string(apperrors.KindOf(err)),
			"message":  err.Error(),
		})
	default:
		return RespondError(c, err)
	}
}

// HandleSweep runs one reconciliation pass and returns its report. A sweep already running on
// any instance answers 200 with outcome "locked" so schedulers do not retry it.
func (tc *TaskController) HandleSweep(c *fiber.Ctx) error {
	var report *signature.SweepReport
	sweep := func(ctx context.Context) error {
		var err error
		report, err = tc.reconciler.Run(ctx)
		return err
	}

	var err error
	if tc.lock != nil {
		err = tc.lock.Run(c.UserContext(), sweep)
	} else {
		err = sweep(c.UserContext())
	}
	switch {
	case errors.Is(err, jobqueue.ErrSweepLocked):
		return c.JSON(fiber.Map{"outcome": "locked", "message": err.Error()})
	case err != nil:
		return RespondError(c, err)
	}
	return c.JSON(report)
}

// HandleStats returns event counts per status and job queue sizes
func (tc *TaskController) HandleStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	counts, err := tc.service.CountByStatus(ctx)
	if err != nil {
		return RespondError(c, err)
	}
	events := make(fiber.Map, len(counts))
	for status, n := range counts {
		events[string(status)] = n
	}
	response := fiber.Map{"events": events}

	if tc.queue != nil {
		jobs, err := tc.queue.GetJobStats(ctx)
		if err != nil {
			return RespondError(c, err)
		}
		queued, err := tc.queue.GetQueueSize(ctx)
		if err != nil {
			return RespondError(c, err)
		}
		processing, err := tc.queue.GetProcessingSize(ctx)
		if err != nil {
			return RespondError(c, err)
		}
		delayed, err := tc.queue.GetDelayedSize(ctx)
		if err != nil {
			return RespondError(c, err)
		}
		response["jobs"] = fiber.Map{
			"stats":      jobs,
			"queued":     queued,
			"processing": processing,
			"delayed":    delayed,
		}
	}
	return c.JSON(response)
}
