package models

import (
	"encoding/base64"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
)

var requestValidator = validator.New()

// DocumentData is one document of a creation request, content base64 encoded.
type DocumentData struct {
	FileName      string `json:"fileName" validate:"required,max=255"`
	Base64Content string `json:"base64Content" validate:"required,base64"`
}

// Decode returns the raw document bytes.
func (d DocumentData) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(d.Base64Content)
}

// SignerInfo is stored under the signer metadata key.
type SignerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	CPF   string `json:"cpf,omitempty"`
}

// CreateSignatureEventRequest is the inbound creation contract.
type CreateSignatureEventRequest struct {
	CampaignID  string         `json:"campaignId" validate:"required,max=100"`
	CNPJ        string         `json:"cnpj" validate:"required,len=14,numeric"`
	Provider    string         `json:"provider" validate:"required"`
	Documents   []DocumentData `json:"documents" validate:"required,min=1,dive"`
	SignerName  string         `json:"signerName" validate:"required,max=255"`
	SignerEmail string         `json:"signerEmail" validate:"required,email"`
	SignerCPF   string         `json:"signerCpf" validate:"omitempty,len=11,numeric"`
	Metadata    map[string]any `json:"metadata"`
}

// Validate checks field rules, the provider name and caller metadata keys.
func (r *CreateSignatureEventRequest) Validate() error {
	if err := requestValidator.Struct(r); err != nil {
		return err
	}
	if _, err := ParseProvider(r.Provider); err != nil {
		return err
	}
	for key := range r.Metadata {
		if slices.Contains(ReservedMetadataKeys, key) {
			return fmt.Errorf("metadata key %q is reserved", key)
		}
	}
	return nil
}

// Signer returns the signer block of the request.
func (r *CreateSignatureEventRequest) Signer() SignerInfo {
	return SignerInfo{Name: r.SignerName, Email: r.SignerEmail, CPF: r.SignerCPF}
}

// InitialMetadata builds the metadata of a new event: document names, signer, then caller keys
// in sorted order so the stored document is deterministic.
func (r *CreateSignatureEventRequest) InitialMetadata() Metadata {
	var m Metadata
	names := make([]any, 0, len(r.Documents))
	for _, d := range r.Documents {
		names = append(names, map[string]any{"fileName": d.FileName})
	}
	m.Set(MetaDocuments, names)
	signer := map[string]any{"name": r.SignerName, "email": r.SignerEmail}
	if r.SignerCPF != "" {
		signer["cpf"] = r.SignerCPF
	}
	m.Set(MetaSigner, signer)

	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		m.Set(k, r.Metadata[k])
	}
	return m
}

// SignerFromMetadata reads the signer block back from stored metadata.
func SignerFromMetadata(m Metadata) SignerInfo {
	raw, _ := m.Get(MetaSigner)
	fields, _ := raw.(map[string]any)
	str := func(k string) string {
		v, _ := fields[k].(string)
		return v
	}
	return SignerInfo{Name: str("name"), Email: str("email"), CPF: str("cpf")}
}
