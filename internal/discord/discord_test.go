package discord

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alextreichler/shopbot/internal/notify"
	"github.com/bwmarrin/discordgo"
)

func TestToEmbed(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := notify.Message{Title: "📦 Order Delivered", Description: "done", Color: notify.ColorSuccess}.
		AddField("Download", "https://example.com/L", false).
		AddField("Empty", "", true).
		AddField("Long", strings.Repeat("x", 2000), false)

	e := toEmbed(msg, now)
	if e.Title != msg.Title || e.Color != notify.ColorSuccess {
		t.Fatalf("unexpected embed header %+v", e)
	}
	if e.Timestamp != "2025-05-01T10:00:00Z" || e.Footer == nil || e.Footer.Text != footerText {
		t.Fatalf("expected timestamp and footer, got %q %+v", e.Timestamp, e.Footer)
	}
	if len(e.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(e.Fields))
	}
	if e.Fields[1].Value != "-" || !e.Fields[1].Inline {
		t.Errorf("expected placeholder for empty inline field, got %+v", e.Fields[1])
	}
	if n := len([]rune(e.Fields[2].Value)); n != maxFieldValue {
		t.Errorf("expected long value cut to %d runes, got %d", maxFieldValue, n)
	}
}

func TestMemberFromMessage(t *testing.T) {
	t.Parallel()

	guild := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author:  &discordgo.User{ID: "42"},
		GuildID: "g1",
		Member:  &discordgo.Member{Roles: []string{"r1", "r2"}},
	}}
	m := memberFromMessage(guild)
	if m.UserID != "42" || !m.InGuild() || len(m.RoleIDs) != 2 {
		t.Fatalf("unexpected member %+v", m)
	}

	dm := &discordgo.MessageCreate{Message: &discordgo.Message{Author: &discordgo.User{ID: "42"}}}
	if memberFromMessage(dm).InGuild() {
		t.Fatal("expected a DM author to be outside any guild")
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	closed := &discordgo.RESTError{Message: &discordgo.APIErrorMessage{
		Code:    discordgo.ErrCodeCannotSendMessagesToThisUser,
		Message: "Cannot send messages to this user",
	}}
	if err := classify(closed); !errors.Is(err, notify.ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}

	other := errors.New("connection reset")
	if err := classify(other); err != other {
		t.Errorf("expected other errors to pass through, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate("héllo", 10); got != "héllo" {
		t.Errorf("expected short strings untouched, got %q", got)
	}
	if got := truncate("héllo wörld", 5); got != "héll…" {
		t.Errorf("unexpected truncation %q", got)
	}
}
