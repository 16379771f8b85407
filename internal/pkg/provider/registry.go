package provider

import (
	"fmt"
	"sort"

	"github.com/ManuelReschke/SignFlow/app/models"
	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
)

// Registry maps each provider identity to its gateway. It is built once at startup.
type Registry struct {
	gateways map[models.Provider]Gateway
}

// NewRegistry registers gateways by their declared identity and panics on duplicates.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[models.Provider]Gateway, len(gateways))}
	for _, g := range gateways {
		p := g.Provider()
		if _, exists := r.gateways[p]; exists {
			panic(fmt.Sprintf("provider: gateway for %s registered twice", p))
		}
		r.gateways[p] = g
	}
	return r
}

// Resolve returns the gateway for p or a configuration error.
func (r *Registry) Resolve(p models.Provider) (Gateway, error) {
	g, ok := r.gateways[p]
	if !ok {
		return nil, apperrors.Configuration("provider.Resolve", fmt.Sprintf("no gateway registered for provider %s", p))
	}
	return g, nil
}

// Has reports whether p has a gateway.
func (r *Registry) Has(p models.Provider) bool {
	_, ok := r.gateways[p]
	return ok
}

// Providers lists the registered identities in name order.
func (r *Registry) Providers() []models.Provider {
	out := make([]models.Provider, 0, len(r.gateways))
	for p := range r.gateways {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
