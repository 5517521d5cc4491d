package auth

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/application/port"
)

// StaticPermissionProvider resolves capabilities from a fixed role map loaded
// from configuration. A role always grants a capability of its own name.
type StaticPermissionProvider struct {
	roles  map[string][]string
	logger *zap.Logger
}

// NewStaticPermissionProvider creates a provider from role -> capabilities
func NewStaticPermissionProvider(roles map[string][]string, logger *zap.Logger) *StaticPermissionProvider {
	normalized := make(map[string][]string, len(roles))
	for role, caps := range roles {
		key := normalize(role)
		for _, c := range caps {
			if c = normalize(c); c != "" {
				normalized[key] = append(normalized[key], c)
			}
		}
	}
	return &StaticPermissionProvider{roles: normalized, logger: logger}
}

// Permissions returns the sorted, de-duplicated capabilities of the identity's roles
func (p *StaticPermissionProvider) Permissions(ctx context.Context, id port.Identity) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for _, role := range id.Roles {
		role = normalize(role)
		if role == "" {
			continue
		}
		set[role] = struct{}{}
		caps, ok := p.roles[role]
		if !ok {
			p.logger.Debug("Role has no configured capabilities",
				zap.String("actor_id", id.ActorID),
				zap.String("role", role))
		}
		for _, c := range caps {
			set[c] = struct{}{}
		}
	}

	perms := make([]string, 0, len(set))
	for c := range set {
		perms = append(perms, c)
	}
	sort.Strings(perms)
	return perms, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var _ port.PermissionProvider = (*StaticPermissionProvider)(nil)
