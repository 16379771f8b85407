package models

import (
	"fmt"
	"strings"
)

// SignatureStatus is the lifecycle state of a signature event.
type SignatureStatus string

const (
	SignatureStatusPending  SignatureStatus = "PENDING"
	SignatureStatusSent     SignatureStatus = "SENT"
	SignatureStatusSigned   SignatureStatus = "SIGNED"
	SignatureStatusRejected SignatureStatus = "REJECTED"
	SignatureStatusUploaded SignatureStatus = "UPLOADED"
	SignatureStatusError    SignatureStatus = "ERROR"
	SignatureStatusExpired  SignatureStatus = "EXPIRED"
)

// signatureTransitions lists every allowed edge. States without an entry are terminal.
var signatureTransitions = map[SignatureStatus][]SignatureStatus{
	SignatureStatusPending: {SignatureStatusSent, SignatureStatusError},
	SignatureStatusSent:    {SignatureStatusSigned, SignatureStatusRejected, SignatureStatusError, SignatureStatusExpired},
	SignatureStatusSigned:  {SignatureStatusUploaded, SignatureStatusError},
}

// AllSignatureStatuses returns the statuses in lifecycle order.
func AllSignatureStatuses() []SignatureStatus {
	return []SignatureStatus{
		SignatureStatusPending,
		SignatureStatusSent,
		SignatureStatusSigned,
		SignatureStatusRejected,
		SignatureStatusUploaded,
		SignatureStatusError,
		SignatureStatusExpired,
	}
}

// ParseSignatureStatus accepts any letter case.
func ParseSignatureStatus(raw string) (SignatureStatus, error) {
	s := SignatureStatus(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AllSignatureStatuses() {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown signature status %q", raw)
}

// IsTerminal reports whether no further transition leaves this status.
func (s SignatureStatus) IsTerminal() bool {
	return len(signatureTransitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is an edge of the lifecycle.
func (s SignatureStatus) CanTransitionTo(next SignatureStatus) bool {
	for _, allowed := range signatureTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Provider identifies an e-signature vendor.
type Provider string

const (
	ProviderCertisign Provider = "CERTISIGN"
	ProviderDocuSign  Provider = "DOCUSIGN"
)

// AllProviders returns every provider the service knows how to model.
func AllProviders() []Provider {
	return []Provider{ProviderCertisign, ProviderDocuSign}
}

// ParseProvider accepts any letter case ("docusign", "DocuSign", ...).
func ParseProvider(raw string) (Provider, error) {
	p := Provider(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AllProviders() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown signature provider %q", raw)
}
