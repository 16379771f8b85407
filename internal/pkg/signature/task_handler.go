package signature

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SignFlow/app/models"
	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
)

// Task names, used for logs and metrics.
const (
	TaskSend        = "send"
	TaskCheckStatus = "check_status"
	TaskUpload      = "upload"
)

// TaskHandler binds dispatched tasks to Service operations. A returned error reports the task
// as failed; apperrors.Retryable tells the dispatcher whether to try again.
type TaskHandler struct {
	service    *Service
	dispatcher Dispatcher
}

func NewTaskHandler(service *Service, dispatcher Dispatcher) *TaskHandler {
	return &TaskHandler{service: service, dispatcher: dispatcher}
}

// HandleSend sends a PENDING event to its vendor and schedules the first status check.
func (h *TaskHandler) HandleSend(ctx context.Context, eventID string) error {
	event, err := h.service.FindByID(ctx, eventID)
	if err != nil {
		return h.fail(ctx, TaskSend, eventID, err)
	}
	updated, err := h.service.SendToProvider(ctx, event)
	if err != nil {
		return h.fail(ctx, TaskSend, eventID, err)
	}
	if updated.Status == models.SignatureStatusSent {
		if err := h.dispatcher.ScheduleCheckStatus(ctx, eventID, h.service.config.CheckStatusDelay); err != nil {
			return h.fail(ctx, TaskSend, eventID, err)
		}
	}
	h.service.metrics.task(TaskSend, "ok")
	return nil
}

// HandleCheckStatus polls the vendor; SIGNED schedules the upload and an unchanged status
// schedules the next check while the event is inside the retention period.
func (h *TaskHandler) HandleCheckStatus(ctx context.Context, eventID string) error {
	event, err := h.service.FindByID(ctx, eventID)
	if err != nil {
		return h.fail(ctx, TaskCheckStatus, eventID, err)
	}
	updated, err := h.service.CheckAndUpdateStatus(ctx, event)
	if err != nil {
		return h.fail(ctx, TaskCheckStatus, eventID, err)
	}

	cfg := h.service.config
	switch updated.Status {
	case models.SignatureStatusSigned:
		err = h.dispatcher.ScheduleUpload(ctx, eventID, 0)
	case models.SignatureStatusSent:
		if !updated.IsOlderThan(cfg.RetentionPeriod, h.service.now()) {
			err = h.dispatcher.ScheduleCheckStatus(ctx, eventID, cfg.CheckStatusDelay)
		} else {
			log.Infof("[Signature] Event %s is past retention, leaving it to the expiration sweep", eventID)
		}
	}
	if err != nil {
		return h.fail(ctx, TaskCheckStatus, eventID, err)
	}
	h.service.metrics.task(TaskCheckStatus, "ok")
	return nil
}

// HandleUpload archives the signed documents of a SIGNED event.
func (h *TaskHandler) HandleUpload(ctx context.Context, eventID string) error {
	event, err := h.service.FindByID(ctx, eventID)
	if err != nil {
		return h.fail(ctx, TaskUpload, eventID, err)
	}
	if _, err := h.service.DownloadAndUploadSignedDocuments(ctx, event); err != nil {
		return h.fail(ctx, TaskUpload, eventID, err)
	}
	h.service.metrics.task(TaskUpload, "ok")
	return nil
}

// fail applies the failure policy: provider and storage errors move the event to ERROR, the
// error is always returned so the dispatcher sees the task as failed.
func (h *TaskHandler) fail(ctx context.Context, task, eventID string, err error) error {
	kind := apperrors.KindOf(err)
	outcome := string(kind)
	if outcome == "" {
		outcome = "error"
	}
	h.service.metrics.task(task, outcome)

	switch {
	case apperrors.MarksEventFailed(err):
		if markErr := h.service.MarkAsError(ctx, eventID, err.Error()); markErr != nil {
			log.Errorf("[Signature] %s task for %s failed (%v) and marking it as error failed too: %v", task, eventID, err, markErr)
			return err
		}
		log.Warnf("[Signature] %s task for %s failed: %v", task, eventID, err)
	case kind == apperrors.KindConfiguration:
		log.Errorf("[Signature] %s task for %s hit a configuration error, not retrying: %v", task, eventID, err)
	case kind == apperrors.KindInvalidState || kind == apperrors.KindNotFound:
		log.Warnf("[Signature] %s task for %s rejected: %v", task, eventID, err)
	default:
		log.Warnf("[Signature] %s task for %s failed, will be retried: %v", task, eventID, err)
	}
	return err
}
