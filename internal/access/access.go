// Package access decides who may use the shop and who may administer it.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/alextreichler/shopbot/internal/clock"
	"github.com/alextreichler/shopbot/internal/models"
)

// PermissionAdministrator is the platform's Administrator permission bit.
const PermissionAdministrator int64 = 1 << 3

// Member is the caller of a command as seen by the guard. GuildID is empty for
// direct messages.
type Member struct {
	UserID      string
	GuildID     string
	RoleIDs     []string
	Permissions int64
}

func (m Member) InGuild() bool {
	return m.GuildID != ""
}

type BanStore interface {
	Ban(ctx context.Context, userID, reason string, at time.Time) error
	Unban(ctx context.Context, userID string) error
	IsBanned(ctx context.Context, userID string) (bool, error)
	ListBans(ctx context.Context) ([]models.BanEntry, error)
}

type Guard struct {
	store       BanStore
	adminRoleID string
	clock       clock.Clock
	log         *slog.Logger
}

// NewGuard returns a guard that treats adminRoleID as the admin role. An empty
// role leaves the Administrator permission as the only way in.
func NewGuard(st BanStore, adminRoleID string, clk clock.Clock, logger *slog.Logger) *Guard {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		store:       st,
		adminRoleID: strings.TrimSpace(adminRoleID),
		clock:       clk,
		log:         logger.With("component", "access"),
	}
}

// IsAdmin reports whether m holds the admin role or the Administrator
// permission. Outside a guild nobody is an admin.
func (g *Guard) IsAdmin(m Member) bool {
	if !m.InGuild() {
		return false
	}
	if g.adminRoleID != "" && g.adminRoleID != "0" && slices.Contains(m.RoleIDs, g.adminRoleID) {
		return true
	}
	return m.Permissions&PermissionAdministrator != 0
}

func (g *Guard) IsBanned(ctx context.Context, userID string) (bool, error) {
	banned, err := g.store.IsBanned(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check ban: %w", err)
	}
	return banned, nil
}

func (g *Guard) Ban(ctx context.Context, userID, reason, by string) error {
	if err := g.store.Ban(ctx, userID, reason, g.clock.Now()); err != nil {
		return fmt.Errorf("ban user: %w", err)
	}
	g.log.Info("User banned", "user_id", userID, "reason", reason, "by", by)
	return nil
}

func (g *Guard) Unban(ctx context.Context, userID, by string) error {
	if err := g.store.Unban(ctx, userID); err != nil {
		return fmt.Errorf("unban user: %w", err)
	}
	g.log.Info("User unbanned", "user_id", userID, "by", by)
	return nil
}

func (g *Guard) Bans(ctx context.Context) ([]models.BanEntry, error) {
	return g.store.ListBans(ctx)
}
