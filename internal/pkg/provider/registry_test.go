package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SignFlow/app/models"
	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
)

type stubGateway struct{ p models.Provider }

func (s stubGateway) Provider() models.Provider { return s.p }
func (s stubGateway) SendEnvelope(context.Context, EnvelopeRequest) (*ProviderResponse, error) {
	return &ProviderResponse{EnvelopeID: "E-1"}, nil
}
func (s stubGateway) CheckStatus(context.Context, string) (*StatusCheckResponse, error) {
	return &StatusCheckResponse{Status: StatusPending}, nil
}
func (s stubGateway) DownloadSignedDocuments(context.Context, string) ([]SignedDocument, error) {
	return nil, nil
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry(stubGateway{models.ProviderDocuSign}, stubGateway{models.ProviderCertisign})

	g, err := r.Resolve(models.ProviderCertisign)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderCertisign, g.Provider())
	assert.Equal(t, []models.Provider{models.ProviderCertisign, models.ProviderDocuSign}, r.Providers())
}

func TestRegistryUnknownProviderIsConfigurationError(t *testing.T) {
	r := NewRegistry(stubGateway{models.ProviderCertisign})

	_, err := r.Resolve(models.ProviderDocuSign)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))
	assert.False(t, r.Has(models.ProviderDocuSign))
}

func TestRegistryPanicsOnDuplicate(t *testing.T) {
	assert.Panics(t, func() {
		NewRegistry(stubGateway{models.ProviderCertisign}, stubGateway{models.ProviderCertisign})
	})
}

func TestConfigGatewaysOnlyRegistersConfiguredVendors(t *testing.T) {
	cfg := &Config{CertisignBaseURL: "http://x", CertisignAPIToken: "tok"}
	r := NewRegistry(cfg.Gateways()...)
	assert.Equal(t, []models.Provider{models.ProviderCertisign}, r.Providers())

	cfg.DocuSignAccountID = "acct"
	cfg.DocuSignAccessToken = "tok"
	assert.Len(t, cfg.Gateways(), 2)
}
