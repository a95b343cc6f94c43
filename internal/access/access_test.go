package access

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alextreichler/shopbot/internal/clock"
	"github.com/alextreichler/shopbot/internal/store"
)

func TestIsAdmin(t *testing.T) {
	t.Parallel()
	g := NewGuard(nil, "555", nil, nil)

	tests := []struct {
		name   string
		member Member
		want   bool
	}{
		{"admin role", Member{UserID: "1", GuildID: "g", RoleIDs: []string{"111", "555"}}, true},
		{"administrator permission", Member{UserID: "1", GuildID: "g", Permissions: PermissionAdministrator | 0x400}, true},
		{"plain member", Member{UserID: "1", GuildID: "g", RoleIDs: []string{"111"}, Permissions: 0x400}, false},
		{"direct message with role", Member{UserID: "1", RoleIDs: []string{"555"}}, false},
		{"direct message with permission", Member{UserID: "1", Permissions: PermissionAdministrator}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.IsAdmin(tt.member); got != tt.want {
				t.Errorf("IsAdmin() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("unset role id matches nothing", func(t *testing.T) {
		g := NewGuard(nil, "0", nil, nil)
		if g.IsAdmin(Member{UserID: "1", GuildID: "g", RoleIDs: []string{"0"}}) {
			t.Error("expected role 0 to grant nothing")
		}
	})
}

func TestBans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st, err := store.NewStore(filepath.Join(t.TempDir(), "access.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	g := NewGuard(st, "555", clock.NewFixed(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)), nil)

	banned, err := g.IsBanned(ctx, "42")
	if err != nil || banned {
		t.Fatalf("expected not banned, got %v (%v)", banned, err)
	}

	for i := 0; i < 2; i++ {
		if err := g.Ban(ctx, "42", "chargeback", "admin"); err != nil {
			t.Fatalf("ban %d: %v", i, err)
		}
	}
	if banned, _ := g.IsBanned(ctx, "42"); !banned {
		t.Fatal("expected banned after Ban")
	}
	bans, err := g.Bans(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(bans) != 1 || bans[0].Reason != "chargeback" {
		t.Fatalf("expected a single ban entry, got %+v", bans)
	}

	for i := 0; i < 2; i++ {
		if err := g.Unban(ctx, "42", "admin"); err != nil {
			t.Fatalf("unban %d: %v", i, err)
		}
	}
	if banned, _ := g.IsBanned(ctx, "42"); banned {
		t.Fatal("expected not banned after Unban")
	}
}
