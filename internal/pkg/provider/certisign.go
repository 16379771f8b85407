package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SignFlow/app/models"
	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
)

// CertisignGateway talks to the Certisign Portal de Assinaturas REST API.
type CertisignGateway struct {
	BaseURL    string
	APIToken   string
	HTTPClient *http.Client
}

func NewCertisignGateway(baseURL, apiToken string, client *http.Client) *CertisignGateway {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &CertisignGateway{BaseURL: strings.TrimRight(baseURL, "/"), APIToken: apiToken, HTTPClient: client}
}

func (g *CertisignGateway) Provider() models.Provider {
	return models.ProviderCertisign
}

type certisignUpload struct {
	Name       string              `json:"name"`
	ExternalID string              `json:"externalId"`
	Files      []certisignFile     `json:"files"`
	Signers    []certisignSigner   `json:"signers"`
	Flow       []certisignFlowStep `json:"flowActions"`
}

type certisignFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type certisignSigner struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Identifier string `json:"identifier,omitempty"`
}

type certisignFlowStep struct {
	Type  string `json:"type"`
	Email string `json:"email"`
}

type certisignDocument struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ConcludedAt string `json:"concludedAt"`
}

type certisignSignedFiles struct {
	Files []certisignFile `json:"files"`
}

func (g *CertisignGateway) SendEnvelope(ctx context.Context, req EnvelopeRequest) (*ProviderResponse, error) {
	const op = "certisign.SendEnvelope"
	payload := certisignUpload{
		Name:       fmt.Sprintf("%s-%s", req.CampaignID, req.CNPJ),
		ExternalID: req.EventID,
		Signers:    []certisignSigner{{Name: req.Signer.Name, Email: req.Signer.Email, Identifier: req.Signer.CPF}},
		Flow:       []certisignFlowStep{{Type: "Signer", Email: req.Signer.Email}},
	}
	for _, d := range req.Documents {
		payload.Files = append(payload.Files, certisignFile{Name: d.FileName, Content: base64.StdEncoding.EncodeToString(d.Content)})
	}

	httpReq, err := g.newRequest(ctx, http.MethodPost, "/api/documents", payload)
	if err != nil {
		return nil, apperrors.Provider(op, "build request", err)
	}
	body, err := doRequest(g.HTTPClient, httpReq, op)
	if err != nil {
		return nil, err
	}

	var doc certisignDocument
	raw, err := decodeJSON(body, &doc, op)
	if err != nil {
		return nil, err
	}
	if doc.ID == "" {
		return nil, apperrors.Provider(op, "response has no document id", nil)
	}
	log.Infof("[Certisign] Created document %s for event %s", doc.ID, req.EventID)
	return &ProviderResponse{EnvelopeID: doc.ID, Status: doc.Status, Raw: raw}, nil
}

func (g *CertisignGateway) CheckStatus(ctx context.Context, envelopeID string) (*StatusCheckResponse, error) {
	const op = "certisign.CheckStatus"
	httpReq, err := g.newRequest(ctx, http.MethodGet, "/api/documents/"+url.PathEscape(envelopeID)+"/details", nil)
	if err != nil {
		return nil, apperrors.Provider(op, "build request", err)
	}
	body, err := doRequest(g.HTTPClient, httpReq, op)
	if err != nil {
		return nil, err
	}

	var doc certisignDocument
	raw, err := decodeJSON(body, &doc, op)
	if err != nil {
		return nil, err
	}
	out := &StatusCheckResponse{Status: certisignStatus(doc.Status), RawStatus: doc.Status, Raw: raw}
	if t, err := time.Parse(time.RFC3339, doc.ConcludedAt); err == nil {
		out.SignedAt = &t
	}
	return out, nil
}

func (g *CertisignGateway) DownloadSignedDocuments(ctx context.Context, envelopeID string) ([]SignedDocument, error) {
	const op = "certisign.DownloadSignedDocuments"
	httpReq, err := g.newRequest(ctx, http.MethodGet, "/api/documents/"+url.PathEscape(envelopeID)+"/signed-files", nil)
	if err != nil {
		return nil, apperrors.Provider(op, "build request", err)
	}
	body, err := doRequest(g.HTTPClient, httpReq, op)
	if err != nil {
		return nil, err
	}

	var files certisignSignedFiles
	if _, err := decodeJSON(body, &files, op); err != nil {
		return nil, err
	}
	out := make([]SignedDocument, 0, len(files.Files))
	for _, f := range files.Files {
		content, err := base64.StdEncoding.DecodeString(f.Content)
		if err != nil {
			return nil, apperrors.Provider(op, "file "+f.Name+" is not base64", err)
		}
		out = append(out, SignedDocument{FileName: f.Name, Content: content})
	}
	return checkSignedDocuments(op, out)
}

func (g *CertisignGateway) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	req, err := newJSONRequest(ctx, method, g.BaseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", g.APIToken)
	return req, nil
}

// certisignStatus maps Certisign document states.
func certisignStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "concluded":
		return StatusSigned
	case "refused", "canceled", "cancelled":
		return StatusRejected
	default:
		return StatusPending
	}
}

// checkSignedDocuments rejects empty downloads so nothing is archived as signed by mistake.
func checkSignedDocuments(op string, docs []SignedDocument) ([]SignedDocument, error) {
	if len(docs) == 0 {
		return nil, apperrors.Provider(op, "vendor returned no signed documents", nil)
	}
	for _, d := range docs {
		if len(d.Content) == 0 {
			return nil, apperrors.Provider(op, "signed document "+d.FileName+" is empty", nil)
		}
	}
	return docs, nil
}
