package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/application/port"
)

func TestStaticPermissionProvider(t *testing.T) {
	p := NewStaticPermissionProvider(map[string][]string{
		"Reviewer":  {"review", "comment"},
		"committee": {"decide", "review"},
	}, zap.NewNop())

	tests := []struct {
		name  string
		roles []string
		want  []string
	}{
		{"no roles", nil, []string{}},
		{"single role includes its own name", []string{"reviewer"}, []string{"comment", "review", "reviewer"}},
		{"roles are case-insensitive and merged", []string{" REVIEWER", "Committee"}, []string{"comment", "committee", "decide", "review", "reviewer"}},
		{"unknown role grants only itself", []string{"auditor"}, []string{"auditor"}},
		{"blank roles are ignored", []string{"", "  "}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Permissions(context.Background(), port.Identity{ActorID: "u1", Roles: tt.roles})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStaticPermissionProvider_Cancelled(t *testing.T) {
	p := NewStaticPermissionProvider(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Permissions(ctx, port.Identity{ActorID: "u1", Roles: []string{"reviewer"}})
	assert.ErrorIs(t, err, context.Canceled)
}
