package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/SignFlow/app/models"
	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
)

// SignatureEventRepository defines the event store operations
type SignatureEventRepository interface {
	Create(ctx context.Context, event *models.SignatureEvent) error
	GetByID(ctx context.Context, id string) (*models.SignatureEvent, error)
	Update(ctx context.Context, event *models.SignatureEvent) error
	List(ctx context.Context, offset, limit int) ([]models.SignatureEvent, error)
	Count(ctx context.Context) (int64, error)
	FindByStatus(ctx context.Context, status models.SignatureStatus, offset, limit int) ([]models.SignatureEvent, error)
	FindByStatusForStatusCheck(ctx context.Context, statuses []models.SignatureStatus, offset, limit int) ([]models.SignatureEvent, error)
	FindByStatusUpdatedBefore(ctx context.Context, status models.SignatureStatus, cutoff time.Time, offset, limit int) ([]models.SignatureEvent, error)
	FindSentCreatedBefore(ctx context.Context, cutoff time.Time, offset, limit int) ([]models.SignatureEvent, error)
	CountByStatus(ctx context.Context) (map[models.SignatureStatus]int64, error)
}

// signatureEventRepository implements SignatureEventRepository on GORM/MySQL
type signatureEventRepository struct {
	db *gorm.DB
}

// NewSignatureEventRepository creates a new signature event repository
func NewSignatureEventRepository(db *gorm.DB) SignatureEventRepository {
	return &signatureEventRepository{db: db}
}

func (r *signatureEventRepository) Create(ctx context.Context, event *models.SignatureEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create signature event: %w", err)
	}
	return nil
}

func (r *signatureEventRepository) GetByID(ctx context.Context, id string) (*models.SignatureEvent, error) {
	var event models.SignatureEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("repository.GetByID", fmt.Sprintf("signature event %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get signature event %s: %w", id, err)
	}
	return &event, nil
}

// Update writes status and metadata only when the stored version still equals event.Version.
// On success event.Version is advanced; a stale version yields a conflict error.
func (r *signatureEventRepository) Update(ctx context.Context, event *models.SignatureEvent) error {
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = time.Now()
	}
	tx := versionedUpdate(r.db.WithContext(ctx), event)
	if tx.Error != nil {
		return fmt.Errorf("update signature event %s: %w", event.ID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.SignatureEvent{}).Where("id = ?", event.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("update signature event %s: %w", event.ID, err)
		}
		if count == 0 {
			return apperrors.NotFound("repository.Update", fmt.Sprintf("signature event %s not found", event.ID))
		}
		return apperrors.Conflict("repository.Update", fmt.Sprintf("signature event %s changed since version %d", event.ID, event.Version))
	}
	event.Version++
	return nil
}

func (r *signatureEventRepository) List(ctx context.Context, offset, limit int) ([]models.SignatureEvent, error) {
	var events []models.SignatureEvent
	err := r.db.WithContext(ctx).Order("created_at DESC, id ASC").Offset(offset).Limit(limit).Find(&events).Error
	return events, err
}

func (r *signatureEventRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SignatureEvent{}).Count(&count).Error
	return count, err
}

func (r *signatureEventRepository) FindByStatus(ctx context.Context, status models.SignatureStatus, offset, limit int) ([]models.SignatureEvent, error) {
	var events []models.SignatureEvent
	err := r.db.WithContext(ctx).
		Scopes(withStatus(status)).
		Order("created_at DESC, id ASC").
		Offset(offset).Limit(limit).
		Find(&events).Error
	return events, err
}

// FindByStatusForStatusCheck returns events carrying an envelope id, least recently updated first.
func (r *signatureEventRepository) FindByStatusForStatusCheck(ctx context.Context, statuses []models.SignatureStatus, offset, limit int) ([]models.SignatureEvent, error) {
	var events []models.SignatureEvent
	err := r.db.WithContext(ctx).
		Scopes(statusCheckCandidates(statuses)).
		Offset(offset).Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *signatureEventRepository) FindByStatusUpdatedBefore(ctx context.Context, status models.SignatureStatus, cutoff time.Time, offset, limit int) ([]models.SignatureEvent, error) {
	var events []models.SignatureEvent
	err := r.db.WithContext(ctx).
		Scopes(withStatus(status)).
		Where("updated_at < ?", cutoff).
		Order("updated_at ASC, id ASC").
		Offset(offset).Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *signatureEventRepository) FindSentCreatedBefore(ctx context.Context, cutoff time.Time, offset, limit int) ([]models.SignatureEvent, error) {
	var events []models.SignatureEvent
	err := r.db.WithContext(ctx).
		Scopes(sentCreatedBefore(cutoff)).
		Offset(offset).Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *signatureEventRepository) CountByStatus(ctx context.Context) (map[models.SignatureStatus]int64, error) {
	var rows []struct {
		Status models.SignatureStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&models.SignatureEvent{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.SignatureStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func versionedUpdate(db *gorm.DB, event *models.SignatureEvent) *gorm.DB {
	return db.Model(&models.SignatureEvent{}).
		Where("id = ? AND version = ?", event.ID, event.Version).
		Updates(map[string]interface{}{
			"status":     event.Status,
			"metadata":   event.Metadata,
			"version":    gorm.Expr("version + 1"),
			"updated_at": event.UpdatedAt,
		})
}

func withStatus(status models.SignatureStatus) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", status)
	}
}

func statusCheckCandidates(statuses []models.SignatureStatus) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status IN ?", statuses).
			Where("JSON_EXTRACT(metadata, '$.envelope_id') IS NOT NULL").
			Order("updated_at ASC, id ASC")
	}
}

func sentCreatedBefore(cutoff time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ? AND created_at < ?", models.SignatureStatusSent, cutoff).
			Order("created_at ASC, id ASC")
	}
}
