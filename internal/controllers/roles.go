package controllers

import (
	"strings"

	"github.com/felman/modulos_backend/internal/models"
)

// normalizeRoles trims and dedupes rolesPermitidos, folding any spelling of
// the "every role" sentinel to its canonical form.
func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := map[string]struct{}{}
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if strings.EqualFold(r, models.RoleAll) {
			r = models.RoleAll
		}
		k := strings.ToLower(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
