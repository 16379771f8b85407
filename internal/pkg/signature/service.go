package signature

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/SignFlow/app/models"
	"github.com/ManuelReschke/SignFlow/app/repository"
	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
	"github.com/ManuelReschke/SignFlow/internal/pkg/packager"
	"github.com/ManuelReschke/SignFlow/internal/pkg/provider"
)

// DocumentPackager archives documents in object storage.
type DocumentPackager interface {
	PackageDocuments(ctx context.Context, scope packager.ScopeKey, archive string, docs []packager.Document) (string, error)
	Unpack(ctx context.Context, location string) ([]packager.Document, error)
}

// Service drives signature events through their lifecycle. Every mutating operation checks its
// precondition first and returns the event untouched when it does not hold, so redelivered
// tasks are harmless.
type Service struct {
	repo     repository.SignatureEventRepository
	packager DocumentPackager
	registry *provider.Registry
	config   *Config
	metrics  *Metrics
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithMetrics records lifecycle metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo repository.SignatureEventRepository, pkg DocumentPackager, registry *provider.Registry, cfg *Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Service{repo: repo, packager: pkg, registry: registry, config: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// CreateEvent validates the request, archives its documents and stores a PENDING event.
func (s *Service) CreateEvent(ctx context.Context, req *models.CreateSignatureEventRequest) (*models.SignatureEvent, error) {
	const op = "signature.CreateEvent"
	if req == nil {
		return nil, apperrors.Validation(op, "request is required", nil)
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(op, "invalid request", err)
	}
	p, _ := models.ParseProvider(req.Provider)
	if !s.registry.Has(p) {
		return nil, apperrors.Validation(op, fmt.Sprintf("provider %s is not enabled", p), nil)
	}

	docs := make([]packager.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		content, err := d.Decode()
		if err != nil {
			return nil, apperrors.Validation(op, "document "+d.FileName+" is not valid base64", err)
		}
		docs = append(docs, packager.Document{FileName: d.FileName, Content: content})
	}

	now := s.now()
	event := &models.SignatureEvent{
		ID:         uuid.NewString(),
		CampaignID: req.CampaignID,
		CNPJ:       req.CNPJ,
		Provider:   p,
		Status:     models.SignatureStatusPending,
		Metadata:   req.InitialMetadata(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	location, err := s.packager.PackageDocuments(ctx, scopeOf(event), packager.DocumentsArchive, docs)
	if err != nil {
		return nil, err
	}
	event.Metadata.SetDocumentsLocation(location)

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	s.metrics.created(p)
	log.Infof("[Signature] Created event %s (campaign=%s provider=%s documents=%d)", event.ID, event.CampaignID, p, len(docs))
	return event, nil
}

// SendToProvider opens the vendor envelope for a PENDING event and moves it to SENT.
func (s *Service) SendToProvider(ctx context.Context, event *models.SignatureEvent) (*models.SignatureEvent, error) {
	const op = "signature.SendToProvider"
	if event.Status != models.SignatureStatusPending || event.Metadata.HasEnvelopeID() {
		log.Debugf("[Signature] Send skipped for %s (status=%s)", event.ID, event.Status)
		return event, nil
	}

	gateway, err := s.registry.Resolve(event.Provider)
	if err != nil {
		return nil, err
	}
	stored, err := s.packager.Unpack(ctx, event.Metadata.DocumentsLocation())
	if err != nil {
		return nil, err
	}

	req := provider.EnvelopeRequest{
		EventID:    event.ID,
		CampaignID: event.CampaignID,
		CNPJ:       event.CNPJ,
		Signer:     models.SignerFromMetadata(event.Metadata),
	}
	names := make([]string, 0, len(stored))
	for _, d := range stored {
		req.Documents = append(req.Documents, provider.Document{FileName: d.FileName, Content: d.Content})
		names = append(names, d.FileName)
	}

	resp, err := gateway.SendEnvelope(ctx, req)
	s.metrics.providerCall(event.Provider, "send_envelope", err)
	if err != nil {
		return nil, asProviderError(op, err)
	}

	requested := s.now()
	return s.apply(ctx, event, func(e *models.SignatureEvent) (bool, error) {
		if e.Status != models.SignatureStatusPending || e.Metadata.HasEnvelopeID() {
			log.Warnf("[Signature] Event %s changed while envelope %s was created, keeping stored state", e.ID, resp.EnvelopeID)
			return false, nil
		}
		e.Metadata.AppendRequest(requested, map[string]any{
			"operation": "send_envelope",
			"provider":  string(e.Provider),
			"documents": names,
			"signer":    req.Signer.Email,
		})
		e.Metadata.AppendResponse(requested, responsePayload(resp.Raw))
		if err := e.Metadata.SetEnvelopeID(resp.EnvelopeID); err != nil {
			return false, apperrors.InvalidState(op, err.Error())
		}
		e.Metadata.SetTime(models.MetaSentAt, requested)
		if resp.Status != "" {
			e.Metadata.Set(models.MetaProviderStatus, resp.Status)
		}
		return true, transition(op, e, models.SignatureStatusSent)
	})
}

// CheckAndUpdateStatus polls the vendor for a SENT event and persists SIGNED or REJECTED.
// An unchanged vendor status writes nothing.
func (s *Service) CheckAndUpdateStatus(ctx context.Context, event *models.SignatureEvent) (*models.SignatureEvent, error) {
	const op = "signature.CheckAndUpdateStatus"
	if event.Status != models.SignatureStatusSent || !event.Metadata.HasEnvelopeID() {
		log.Debugf("[Signature] Status check skipped for %s (status=%s)", event.ID, event.Status)
		return event, nil
	}

	gateway, err := s.registry.Resolve(event.Provider)
	if err != nil {
		return nil, err
	}
	resp, err := gateway.CheckStatus(ctx, event.Metadata.EnvelopeID())
	s.metrics.providerCall(event.Provider, "check_status", err)
	if err != nil {
		return nil, asProviderError(op, err)
	}

	var next models.SignatureStatus
	switch resp.Status {
	case provider.StatusSigned:
		next = models.SignatureStatusSigned
	case provider.StatusRejected:
		next = models.SignatureStatusRejected
	default:
		return event, nil
	}

	checked := s.now()
	return s.apply(ctx, event, func(e *models.SignatureEvent) (bool, error) {
		if e.Status != models.SignatureStatusSent {
			return false, nil
		}
		e.Metadata.AppendResponse(checked, responsePayload(resp.Raw))
		e.Metadata.Set(models.MetaProviderStatus, resp.RawStatus)
		if next == models.SignatureStatusSigned {
			signedAt := checked
			if resp.SignedAt != nil {
				signedAt = *resp.SignedAt
			}
			e.Metadata.SetTime(models.MetaSignedAt, signedAt)
		}
		return true, transition(op, e, next)
	})
}

// MarkAsError moves a non-terminal event to ERROR and records why.
func (s *Service) MarkAsError(ctx context.Context, eventID, message string) error {
	const op = "signature.MarkAsError"
	event, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	at := s.now()
	_, err = s.apply(ctx, event, func(e *models.SignatureEvent) (bool, error) {
		if e.Status.IsTerminal() {
			return false, nil
		}
		e.Metadata.Set(models.MetaErrorMessage, message)
		e.Metadata.SetTime(models.MetaErrorAt, at)
		return true, transition(op, e, models.SignatureStatusError)
	})
	if err == nil {
		log.Warnf("[Signature] Event %s marked as error: %s", eventID, message)
	}
	return err
}

// MarkExpiredEvents expires every SENT event older than the retention period and returns how
// many were transitioned.
func (s *Service) MarkExpiredEvents(ctx context.Context) (int, error) {
	const op = "signature.MarkExpiredEvents"
	now := s.now()
	cutoff := now.Add(-s.config.RetentionPeriod)
	reason := s.config.ExpirationReason()

	expired, offset := 0, 0
	for {
		events, err := s.repo.FindSentCreatedBefore(ctx, cutoff, offset, s.config.SweepBatchSize)
		if err != nil {
			return expired, err
		}
		for i := range events {
			changed := false
			_, err := s.apply(ctx, &events[i], func(e *models.SignatureEvent) (bool, error) {
				if e.Status != models.SignatureStatusSent || !e.CreatedAt.Before(cutoff) {
					return false, nil
				}
				e.Metadata.SetTime(models.MetaExpiredAt, now)
				e.Metadata.Set(models.MetaExpirationReason, reason)
				changed = true
				return true, transition(op, e, models.SignatureStatusExpired)
			})
			switch {
			case err != nil && apperrors.IsKind(err, apperrors.KindConflict):
				log.Warnf("[Signature] Expiring %s gave up after conflicts: %v", events[i].ID, err)
				offset++
			case err != nil:
				return expired, err
			case changed:
				expired++
			}
		}
		if len(events) < s.config.SweepBatchSize {
			break
		}
	}
	if expired > 0 {
		log.Infof("[Signature] Expired %d event(s) created before %s", expired, cutoff.Format(time.RFC3339))
	}
	return expired, nil
}

// DownloadAndUploadSignedDocuments archives the signed artifacts of a SIGNED event and moves it
// to UPLOADED.
func (s *Service) DownloadAndUploadSignedDocuments(ctx context.Context, event *models.SignatureEvent) (*models.SignatureEvent, error) {
	const op = "signature.DownloadAndUploadSignedDocuments"
	if event.Status == models.SignatureStatusUploaded {
		return event, nil
	}
	if event.Status != models.SignatureStatusSigned {
		return nil, apperrors.InvalidState(op, fmt.Sprintf("event %s is %s, not SIGNED", event.ID, event.Status))
	}
	if !event.Metadata.HasEnvelopeID() {
		return nil, apperrors.InvalidState(op, fmt.Sprintf("event %s has no envelope id", event.ID))
	}

	gateway, err := s.registry.Resolve(event.Provider)
	if err != nil {
		return nil, err
	}
	signed, err := gateway.DownloadSignedDocuments(ctx, event.Metadata.EnvelopeID())
	s.metrics.providerCall(event.Provider, "download_signed_documents", err)
	if err != nil {
		return nil, asProviderError(op, err)
	}
	if len(signed) == 0 {
		return nil, apperrors.Provider(op, "vendor returned no signed documents", nil)
	}

	docs := make([]packager.Document, 0, len(signed))
	for _, d := range signed {
		docs = append(docs, packager.Document{FileName: d.FileName, Content: d.Content})
	}
	location, err := s.packager.PackageDocuments(ctx, scopeOf(event), packager.SignedDocumentsArchive, docs)
	if err != nil {
		return nil, err
	}

	uploaded := s.now()
	return s.apply(ctx, event, func(e *models.SignatureEvent) (bool, error) {
		if e.Status == models.SignatureStatusUploaded {
			return false, nil
		}
		if e.Status != models.SignatureStatusSigned {
			return false, apperrors.InvalidState(op, fmt.Sprintf("event %s is %s, not SIGNED", e.ID, e.Status))
		}
		e.Metadata.SetSignedDocumentsLocation(location)
		e.Metadata.SetTime(models.MetaUploadedAt, uploaded)
		return true, transition(op, e, models.SignatureStatusUploaded)
	})
}

func (s *Service) FindByID(ctx context.Context, id string) (*models.SignatureEvent, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) FindByStatus(ctx context.Context, status models.SignatureStatus, offset, limit int) ([]models.SignatureEvent, error) {
	return s.repo.FindByStatus(ctx, status, offset, limit)
}

// FindSentEventsForStatusCheck lists SENT events with an envelope, least recently updated first.
func (s *Service) FindSentEventsForStatusCheck(ctx context.Context, offset, limit int) ([]models.SignatureEvent, error) {
	return s.repo.FindByStatusForStatusCheck(ctx, []models.SignatureStatus{models.SignatureStatusSent}, offset, limit)
}

func (s *Service) FindSignedEvents(ctx context.Context, offset, limit int) ([]models.SignatureEvent, error) {
	return s.repo.FindByStatus(ctx, models.SignatureStatusSigned, offset, limit)
}

// FindStaleSignedEvents lists SIGNED events not updated since before.
func (s *Service) FindStaleSignedEvents(ctx context.Context, before time.Time, offset, limit int) ([]models.SignatureEvent, error) {
	return s.repo.FindByStatusUpdatedBefore(ctx, models.SignatureStatusSigned, before, offset, limit)
}

// FindStalePendingEvents lists PENDING events not updated since before.
func (s *Service) FindStalePendingEvents(ctx context.Context, before time.Time, offset, limit int) ([]models.SignatureEvent, error) {
	return s.repo.FindByStatusUpdatedBefore(ctx, models.SignatureStatusPending, before, offset, limit)
}

// List returns one page of all events and the total count.
func (s *Service) List(ctx context.Context, offset, limit int) ([]models.SignatureEvent, int64, error) {
	events, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx)
	return events, total, err
}

func (s *Service) CountByStatus(ctx context.Context) (map[models.SignatureStatus]int64, error) {
	return s.repo.CountByStatus(ctx)
}

// apply runs mutate on a copy of event and writes it conditionally on the read version. On a
// version conflict the event is re-read and mutate runs again on the fresh state.
func (s *Service) apply(ctx context.Context, event *models.SignatureEvent, mutate func(*models.SignatureEvent) (bool, error)) (*models.SignatureEvent, error) {
	current, err := cloneEvent(event)
	if err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		from := current.Status
		changed, err := mutate(current)
		if err != nil {
			return nil, err
		}
		if !changed {
			return current, nil
		}
		current.UpdatedAt = s.now()

		err = s.repo.Update(ctx, current)
		if err == nil {
			if from != current.Status {
				s.metrics.transition(from, current.Status)
				log.Infof("[Signature] Event %s: %s -> %s", current.ID, from, current.Status)
			}
			return current, nil
		}
		if !apperrors.IsKind(err, apperrors.KindConflict) || attempt >= s.config.MaxConflictRetries {
			return nil, err
		}

		log.Debugf("[Signature] Version conflict on %s (attempt %d), re-reading", current.ID, attempt)
		fresh, err := s.repo.GetByID(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		current = fresh
	}
}

func transition(op string, e *models.SignatureEvent, next models.SignatureStatus) error {
	if err := e.TransitionTo(next); err != nil {
		return apperrors.InvalidState(op, fmt.Sprintf("event %s: %v", e.ID, err))
	}
	return nil
}

func cloneEvent(e *models.SignatureEvent) (*models.SignatureEvent, error) {
	metadata, err := e.Metadata.Clone()
	if err != nil {
		return nil, fmt.Errorf("copy event %s: %w", e.ID, err)
	}
	c := *e
	c.Metadata = metadata
	return &c, nil
}

func scopeOf(e *models.SignatureEvent) packager.ScopeKey {
	return packager.ScopeKey{CampaignID: e.CampaignID, CNPJ: e.CNPJ, EventID: e.ID}
}

// asProviderError keeps typed gateway errors and classifies anything else as a provider failure.
func asProviderError(op string, err error) error {
	if apperrors.KindOf(err) != "" {
		return err
	}
	return apperrors.Provider(op, "", err)
}

func responsePayload(raw map[string]any) any {
	if raw == nil {
		return map[string]any{}
	}
	return raw
}
