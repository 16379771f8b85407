package provider

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SignFlow/internal/pkg/env"
)

const (
	defaultCertisignBaseURL = "https://api.certisign.com.br"
	defaultDocuSignBaseURL  = "https://demo.docusign.net"
	defaultTimeout          = 15 * time.Second
)

// Config holds the vendor credentials
type Config struct {
	Timeout time.Duration

	CertisignBaseURL  string
	CertisignAPIToken string

	DocuSignBaseURL     string
	DocuSignAccountID   string
	DocuSignAccessToken string
}

// LoadConfig loads vendor configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Timeout:             env.GetEnvDuration("PROVIDER_TIMEOUT", defaultTimeout),
		CertisignBaseURL:    strings.TrimRight(strings.TrimSpace(env.GetEnv("CERTISIGN_BASE_URL", defaultCertisignBaseURL)), "/"),
		CertisignAPIToken:   strings.TrimSpace(env.GetEnv("CERTISIGN_API_TOKEN", "")),
		DocuSignBaseURL:     strings.TrimRight(strings.TrimSpace(env.GetEnv("DOCUSIGN_BASE_URL", defaultDocuSignBaseURL)), "/"),
		DocuSignAccountID:   strings.TrimSpace(env.GetEnv("DOCUSIGN_ACCOUNT_ID", "")),
		DocuSignAccessToken: strings.TrimSpace(env.GetEnv("DOCUSIGN_ACCESS_TOKEN", "")),
	}
}

// Gateways builds a gateway for every vendor with credentials. A vendor without credentials
// stays unregistered, so events addressed to it fail with a configuration error.
func (c *Config) Gateways() []Gateway {
	client := &http.Client{Timeout: c.Timeout}
	var out []Gateway
	if c.CertisignAPIToken != "" {
		out = append(out, NewCertisignGateway(c.CertisignBaseURL, c.CertisignAPIToken, client))
	} else {
		log.Warn("[Provider] CERTISIGN_API_TOKEN not set, Certisign gateway disabled")
	}
	if c.DocuSignAccountID != "" && c.DocuSignAccessToken != "" {
		out = append(out, NewDocuSignGateway(c.DocuSignBaseURL, c.DocuSignAccountID, c.DocuSignAccessToken, client))
	} else {
		log.Warn("[Provider] DOCUSIGN_ACCOUNT_ID/DOCUSIGN_ACCESS_TOKEN not set, DocuSign gateway disabled")
	}
	return out
}
