package signature

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ManuelReschke/SignFlow/app/models"
)

// SweepReport summarises one reconciliation pass.
type SweepReport struct {
	Checked           int           `json:"checked"`
	Signed            int           `json:"signed"`
	Rejected          int           `json:"rejected"`
	Unchanged         int           `json:"unchanged"`
	Failed            int           `json:"failed"`
	LeftSent          int           `json:"left_sent"` // moved out of SENT by another writer during the check
	SendsDispatched   int           `json:"sends_dispatched"`
	UploadsDispatched int           `json:"uploads_dispatched"`
	Expired           int           `json:"expired"`
	Duration          time.Duration `json:"duration_ns"`
}

// Reconciler is the periodic safety net for events whose tasks were lost. It polls SENT events,
// re-dispatches sends and uploads for stale PENDING and SIGNED events, then expires old SENT events.
type Reconciler struct {
	service    *Service
	dispatcher Dispatcher
	limiter    *rate.Limiter
	mu         sync.Mutex // one sweep at a time
}

func NewReconciler(service *Service, dispatcher Dispatcher) *Reconciler {
	cfg := service.config
	limit := rate.Inf
	if cfg.SweepRatePerSecond > 0 {
		limit = rate.Limit(cfg.SweepRatePerSecond)
	}
	return &Reconciler{
		service:    service,
		dispatcher: dispatcher,
		limiter:    rate.NewLimiter(limit, cfg.SweepConcurrency),
	}
}

// Run performs one full sweep. Vendor failures on single events are counted, not returned.
func (r *Reconciler) Run(ctx context.Context) (*SweepReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := time.Now()
	defer r.service.metrics.sweepDone(started)
	report := &SweepReport{}

	if err := r.pollSent(ctx, report); err != nil {
		return report, err
	}
	if err := r.redispatchSends(ctx, report); err != nil {
		return report, err
	}
	if err := r.redispatchUploads(ctx, report); err != nil {
		return report, err
	}
	expired, err := r.service.MarkExpiredEvents(ctx)
	report.Expired = expired
	r.service.metrics.sweep("expired", expired)
	if err != nil {
		return report, err
	}

	report.Duration = time.Since(started)
	log.Infof("[Reconcile] Sweep done in %v: checked=%d signed=%d rejected=%d unchanged=%d failed=%d left=%d sends=%d uploads=%d expired=%d",
		report.Duration, report.Checked, report.Signed, report.Rejected, report.Unchanged, report.Failed, report.LeftSent,
		report.SendsDispatched, report.UploadsDispatched, report.Expired)
	return report, nil
}

func (r *Reconciler) pollSent(ctx context.Context, report *SweepReport) error {
	cfg := r.service.config
	offset := 0
	for {
		events, err := r.service.FindSentEventsForStatusCheck(ctx, offset, cfg.SweepBatchSize)
		if err != nil {
			return err
		}

		var mu sync.Mutex
		stayed := 0
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.SweepConcurrency)
		for i := range events {
			event := &events[i]
			g.Go(func() error {
				if err := r.limiter.Wait(gctx); err != nil {
					return err
				}
				result, ok := r.checkOne(gctx, event)

				mu.Lock()
				defer mu.Unlock()
				report.Checked++
				switch {
				case !ok:
					// a failed check leaves the event in SENT
					report.Failed++
					stayed++
				case result == models.SignatureStatusSent:
					report.Unchanged++
					stayed++
				case result == models.SignatureStatusSigned:
					report.Signed++
				case result == models.SignatureStatusRejected:
					report.Rejected++
				default:
					report.LeftSent++
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		r.service.metrics.sweep("checked", len(events))

		if len(events) < cfg.SweepBatchSize {
			return nil
		}
		// Events that left SENT drop out of the result set; only skip the ones still in it.
		offset += stayed
	}
}

// checkOne returns the event's status after the check; ok is false when the check failed.
func (r *Reconciler) checkOne(ctx context.Context, event *models.SignatureEvent) (models.SignatureStatus, bool) {
	updated, err := r.service.CheckAndUpdateStatus(ctx, event)
	if err != nil {
		log.Warnf("[Reconcile] Status check for %s failed: %v", event.ID, err)
		r.service.metrics.sweep("failed", 1)
		return "", false
	}
	if updated.Status == models.SignatureStatusSigned {
		if err := r.dispatcher.ScheduleUpload(ctx, updated.ID, 0); err != nil {
			log.Errorf("[Reconcile] Scheduling upload for %s failed: %v", updated.ID, err)
		}
	}
	return updated.Status, true
}

// redispatchSends covers creations whose send task was never enqueued.
func (r *Reconciler) redispatchSends(ctx context.Context, report *SweepReport) error {
	cfg := r.service.config
	before := r.service.now().Add(-cfg.PendingGracePeriod)
	for offset := 0; ; offset += cfg.SweepBatchSize {
		events, err := r.service.FindStalePendingEvents(ctx, before, offset, cfg.SweepBatchSize)
		if err != nil {
			return err
		}
		for _, e := range events {
			if err := r.dispatcher.ScheduleSend(ctx, e.ID, 0); err != nil {
				log.Errorf("[Reconcile] Re-dispatching send for %s failed: %v", e.ID, err)
				continue
			}
			report.SendsDispatched++
		}
		if len(events) < cfg.SweepBatchSize {
			r.service.metrics.sweep("sends_dispatched", report.SendsDispatched)
			return nil
		}
	}
}

func (r *Reconciler) redispatchUploads(ctx context.Context, report *SweepReport) error {
	cfg := r.service.config
	before := r.service.now().Add(-cfg.SignedGracePeriod)
	for offset := 0; ; offset += cfg.SweepBatchSize {
		events, err := r.service.FindStaleSignedEvents(ctx, before, offset, cfg.SweepBatchSize)
		if err != nil {
			return err
		}
		for _, e := range events {
			if err := r.dispatcher.ScheduleUpload(ctx, e.ID, 0); err != nil {
				log.Errorf("[Reconcile] Re-dispatching upload for %s failed: %v", e.ID, err)
				continue
			}
			report.UploadsDispatched++
		}
		if len(events) < cfg.SweepBatchSize {
			r.service.metrics.sweep("uploads_dispatched", report.UploadsDispatched)
			return nil
		}
	}
}
