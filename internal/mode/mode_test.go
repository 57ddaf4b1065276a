package mode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"focusaura/internal/config"
	"focusaura/internal/domain"
)

func TestShouldCallLive(t *testing.T) {
	cases := []struct {
		name       string
		mode       config.Mode
		credential string
		want       bool
	}{
		{"demo without credential", config.ModeDemo, "", false},
		{"demo with credential", config.ModeDemo, "k", false},
		{"live without credential", config.ModeLive, "", false},
		{"live with credential", config.ModeLive, "k", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Mode = tc.mode
			cfg.Credential = tc.credential
			r := NewResolver(cfg)
			for _, role := range domain.Roles() {
				assert.Equal(t, tc.want, r.ShouldCallLive(role), role)
			}
		})
	}
}

func TestUnknownRoleAndNilConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeLive
	cfg.Credential = "k"
	assert.False(t, NewResolver(cfg).ShouldCallLive("oracle"))
	assert.False(t, NewResolver(nil).ShouldCallLive(domain.RoleEvidence))
}

func TestRoutes(t *testing.T) {
	routes := NewResolver(config.Default()).Routes()
	assert.Equal(t, map[domain.ProviderRole]string{
		domain.RoleEvidence:  "template",
		domain.RoleRecency:   "template",
		domain.RoleSynthesis: "template",
	}, routes)
}
