package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SignatureEvent is the full lifecycle record of one signature request.
type SignatureEvent struct {
	ID         string          `gorm:"type:char(36);primaryKey" json:"id"`
	CampaignID string          `gorm:"type:varchar(100);not null;index:idx_signature_events_campaign_cnpj,priority:1" json:"campaign_id"`
	CNPJ       string          `gorm:"column:cnpj;type:varchar(14);not null;index:idx_signature_events_campaign_cnpj,priority:2" json:"cnpj"`
	Provider   Provider        `gorm:"type:varchar(20);not null" json:"provider"`
	Status     SignatureStatus `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_signature_events_status" json:"status"`
	Metadata   Metadata        `gorm:"type:json;not null" json:"metadata"`
	Version    int64           `gorm:"not null;default:0" json:"version"`
	CreatedAt  time.Time       `gorm:"autoCreateTime;index:idx_signature_events_created_at" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime;index:idx_signature_events_updated_at" json:"updated_at"`
}

// TableName returns the table name for SignatureEvent
func (SignatureEvent) TableName() string {
	return "signature_events"
}

// BeforeCreate fills in the id and the initial status
func (e *SignatureEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = SignatureStatusPending
	}
	return nil
}

// CanTransitionTo reports whether the event may move to next.
func (e *SignatureEvent) CanTransitionTo(next SignatureStatus) bool {
	return e.Status.CanTransitionTo(next)
}

// TransitionTo moves the event along one lifecycle edge.
func (e *SignatureEvent) TransitionTo(next SignatureStatus) error {
	if !e.CanTransitionTo(next) {
		return fmt.Errorf("transition %s -> %s is not allowed", e.Status, next)
	}
	e.Status = next
	return nil
}

// IsOlderThan reports whether the event was created before now minus d.
func (e *SignatureEvent) IsOlderThan(d time.Duration, now time.Time) bool {
	return e.CreatedAt.Before(now.Add(-d))
}

// SignatureEventResponse is the public projection of a SignatureEvent.
type SignatureEventResponse struct {
	ID                      string          `json:"id"`
	CampaignID              string          `json:"campaign_id"`
	CNPJ                    string          `json:"cnpj"`
	Provider                Provider        `json:"provider"`
	Status                  SignatureStatus `json:"status"`
	EnvelopeID              *string         `json:"envelope_id"`
	DocumentsLocation       *string         `json:"documents_location"`
	SignedDocumentsLocation *string         `json:"signed_documents_location"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// ToResponse builds the projection returned by the API.
func (e *SignatureEvent) ToResponse() *SignatureEventResponse {
	return &SignatureEventResponse{
		ID:                      e.ID,
		CampaignID:              e.CampaignID,
		CNPJ:                    e.CNPJ,
		Provider:                e.Provider,
		Status:                  e.Status,
		EnvelopeID:              optional(e.Metadata.EnvelopeID()),
		DocumentsLocation:       optional(e.Metadata.DocumentsLocation()),
		SignedDocumentsLocation: optional(e.Metadata.SignedDocumentsLocation()),
		CreatedAt:               e.CreatedAt,
		UpdatedAt:               e.UpdatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
