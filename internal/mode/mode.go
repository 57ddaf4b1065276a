// Package mode decides per request whether a provider is called live or
// routed straight to the fallback template bank.
package mode

import (
	"focusaura/internal/config"
	"focusaura/internal/domain"
)

// Resolver answers ShouldCallLive from a read-only config snapshot.
type Resolver struct {
	cfg *config.Config
}

func NewResolver(cfg *config.Config) Resolver {
	return Resolver{cfg: cfg}
}

// ShouldCallLive is true iff mode is live and a credential is configured.
// It is evaluated on every call; nothing is cached between requests.
func (r Resolver) ShouldCallLive(role domain.ProviderRole) bool {
	if r.cfg == nil {
		return false
	}
	switch role {
	case domain.RoleEvidence, domain.RoleRecency, domain.RoleSynthesis:
		return r.cfg.LiveReady()
	default:
		return false
	}
}

// Routes reports, per role, whether the provider runs "live" or from "template".
func (r Resolver) Routes() map[domain.ProviderRole]string {
	out := make(map[domain.ProviderRole]string, len(domain.Roles()))
	for _, role := range domain.Roles() {
		if r.ShouldCallLive(role) {
			out[role] = "live"
		} else {
			out[role] = "template"
		}
	}
	return out
}
