package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SignFlow/app/models"
	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
)

// DocuSignGateway talks to the DocuSign eSignature REST API v2.1.
type DocuSignGateway struct {
	BaseURL     string
	AccountID   string
	AccessToken string
	HTTPClient  *http.Client
}

func NewDocuSignGateway(baseURL, accountID, accessToken string, client *http.Client) *DocuSignGateway {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &DocuSignGateway{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AccountID:   accountID,
		AccessToken: accessToken,
		HTTPClient:  client,
	}
}

func (g *DocuSignGateway) Provider() models.Provider {
	return models.ProviderDocuSign
}

type docuSignEnvelopeDefinition struct {
	EmailSubject string               `json:"emailSubject"`
	Status       string               `json:"status"`
	Documents    []docuSignDocument   `json:"documents"`
	Recipients   docuSignRecipients   `json:"recipients"`
	CustomFields *docuSignCustomField `json:"customFields,omitempty"`
}

type docuSignDocument struct {
	DocumentID     string `json:"documentId"`
	Name           string `json:"name"`
	FileExtension  string `json:"fileExtension,omitempty"`
	DocumentBase64 string `json:"documentBase64,omitempty"`
	Type           string `json:"type,omitempty"`
}

type docuSignRecipients struct {
	Signers []docuSignSigner `json:"signers"`
}

type docuSignSigner struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	RecipientID  string `json:"recipientId"`
	RoutingOrder string `json:"routingOrder"`
}

type docuSignCustomField struct {
	TextCustomFields []docuSignTextField `json:"textCustomFields"`
}

type docuSignTextField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type docuSignEnvelopeSummary struct {
	EnvelopeID        string `json:"envelopeId"`
	Status            string `json:"status"`
	CompletedDateTime string `json:"completedDateTime"`
}

type docuSignDocumentList struct {
	EnvelopeDocuments []docuSignDocument `json:"envelopeDocuments"`
}

func (g *DocuSignGateway) SendEnvelope(ctx context.Context, req EnvelopeRequest) (*ProviderResponse, error) {
	const op = "docusign.SendEnvelope"
	def := docuSignEnvelopeDefinition{
		EmailSubject: fmt.Sprintf("Please sign: %s", req.CampaignID),
		Status:       "sent",
		Recipients: docuSignRecipients{Signers: []docuSignSigner{{
			Email: req.Signer.Email, Name: req.Signer.Name, RecipientID: "1", RoutingOrder: "1",
		}}},
		CustomFields: &docuSignCustomField{TextCustomFields: []docuSignTextField{
			{Name: "event_id", Value: req.EventID},
			{Name: "cnpj", Value: req.CNPJ},
		}},
	}
	for i, d := range req.Documents {
		def.Documents = append(def.Documents, docuSignDocument{
			DocumentID:     strconv.Itoa(i + 1),
			Name:           d.FileName,
			FileExtension:  strings.TrimPrefix(path.Ext(d.FileName), "."),
			DocumentBase64: base64.StdEncoding.EncodeToString(d.Content),
		})
	}

	httpReq, err := g.newRequest(ctx, http.MethodPost, "/envelopes", def)
	if err != nil {
		return nil, apperrors.Provider(op, "build request", err)
	}
	body, err := doRequest(g.HTTPClient, httpReq, op)
	if err != nil {
		return nil, err
	}

	var summary docuSignEnvelopeSummary
	raw, err := decodeJSON(body, &summary, op)
	if err != nil {
		return nil, err
	}
	if summary.EnvelopeID == "" {
		return nil, apperrors.Provider(op, "response has no envelopeId", nil)
	}
	log.Infof("[DocuSign] Created envelope %s for event %s", summary.EnvelopeID, req.EventID)
	return &ProviderResponse{EnvelopeID: summary.EnvelopeID, Status: summary.Status, Raw: raw}, nil
}

func (g *DocuSignGateway) CheckStatus(ctx context.Context, envelopeID string) (*StatusCheckResponse, error) {
	const op = "docusign.CheckStatus"
	httpReq, err := g.newRequest(ctx, http.MethodGet, "/envelopes/"+url.PathEscape(envelopeID), nil)
	if err != nil {
		return nil, apperrors.Provider(op, "build request", err)
	}
	body, err := doRequest(g.HTTPClient, httpReq, op)
	if err != nil {
		return nil, err
	}

	var summary docuSignEnvelopeSummary
	raw, err := decodeJSON(body, &summary, op)
	if err != nil {
		return nil, err
	}
	out := &StatusCheckResponse{Status: docuSignStatus(summary.Status), RawStatus: summary.Status, Raw: raw}
	if t, err := time.Parse(time.RFC3339Nano, summary.CompletedDateTime); err == nil {
		out.SignedAt = &t
	}
	return out, nil
}

func (g *DocuSignGateway) DownloadSignedDocuments(ctx context.Context, envelopeID string) ([]SignedDocument, error) {
	const op = "docusign.DownloadSignedDocuments"
	base := "/envelopes/" + url.PathEscape(envelopeID) + "/documents"
	httpReq, err := g.newRequest(ctx, http.MethodGet, base, nil)
	if err != nil {
		return nil, apperrors.Provider(op, "build request", err)
	}
	body, err := doRequest(g.HTTPClient, httpReq, op)
	if err != nil {
		return nil, err
	}

	var list docuSignDocumentList
	if _, err := decodeJSON(body, &list, op); err != nil {
		return nil, err
	}

	var out []SignedDocument
	for _, d := range list.EnvelopeDocuments {
		if d.DocumentID == "certificate" || d.Type == "summary" {
			continue
		}
		docReq, err := g.newRequest(ctx, http.MethodGet, base+"/"+url.PathEscape(d.DocumentID), nil)
		if err != nil {
			return nil, apperrors.Provider(op, "build request", err)
		}
		docReq.Header.Set("Accept", "application/pdf")
		content, err := doRequest(g.HTTPClient, docReq, op)
		if err != nil {
			return nil, err
		}
		out = append(out, SignedDocument{FileName: pdfName(d.Name), Content: content})
	}
	return checkSignedDocuments(op, out)
}

func (g *DocuSignGateway) newRequest(ctx context.Context, method, resource string, payload any) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s/restapi/v2.1/accounts/%s%s", g.BaseURL, url.PathEscape(g.AccountID), resource)
	req, err := newJSONRequest(ctx, method, endpoint, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.AccessToken)
	return req, nil
}

// docuSignStatus maps envelope states.
func docuSignStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed":
		return StatusSigned
	case "declined", "voided":
		return StatusRejected
	default:
		return StatusPending
	}
}

func pdfName(name string) string {
	if name == "" {
		return "document.pdf"
	}
	if path.Ext(name) == "" {
		return name + ".pdf"
	}
	return name
}
