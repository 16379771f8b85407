package provider

import (
	"context"
	"time"

	"github.com/ManuelReschke/SignFlow/app/models"
)

// Status is a vendor status normalised for the lifecycle.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSigned   Status = "SIGNED"
	StatusRejected Status = "REJECTED"
)

// Document is a named file sent to or received from a vendor.
type Document struct {
	FileName string
	Content  []byte
}

// SignedDocument is a signed artifact downloaded from a vendor.
type SignedDocument struct {
	FileName string
	Content  []byte
}

// EnvelopeRequest is everything a vendor needs to open an envelope.
type EnvelopeRequest struct {
	EventID    string
	CampaignID string
	CNPJ       string
	Signer     models.SignerInfo
	Documents  []Document
}

// ProviderResponse is the outcome of SendEnvelope.
type ProviderResponse struct {
	EnvelopeID string
	Status     string
	Raw        map[string]any
}

// StatusCheckResponse is the outcome of CheckStatus.
type StatusCheckResponse struct {
	Status    Status
	RawStatus string
	SignedAt  *time.Time
	Raw       map[string]any
}

// Gateway is the boundary to one e-signature vendor. Implementations bound their own latency
// and report every failure as a provider error.
type Gateway interface {
	Provider() models.Provider
	SendEnvelope(ctx context.Context, req EnvelopeRequest) (*ProviderResponse, error)
	CheckStatus(ctx context.Context, envelopeID string) (*StatusCheckResponse, error)
	DownloadSignedDocuments(ctx context.Context, envelopeID string) ([]SignedDocument, error)
}
