// Package discord connects the command router and the notifier to a Discord
// gateway session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/alextreichler/shopbot/internal/access"
	"github.com/alextreichler/shopbot/internal/bot"
	"github.com/alextreichler/shopbot/internal/notify"
	"github.com/bwmarrin/discordgo"
)

const (
	footerText     = "Shop Bot 2.0"
	commandTimeout = 30 * time.Second

	maxTitle       = 256
	maxDescription = 4096
	maxFieldName   = 256
	maxFieldValue  = 1024
)

// Router handles one chat message; *bot.Router implements it.
type Router interface {
	Handle(ctx context.Context, req bot.Request) (notify.Message, bool)
}

type Client struct {
	session *discordgo.Session
	log     *slog.Logger
}

// New prepares a session for token. Nothing connects until Run.
func New(token string, logger *slog.Logger) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{session: s, log: logger.With("component", "discord")}, nil
}

// Run opens the gateway, feeds messages to router and blocks until ctx is done.
func (c *Client) Run(ctx context.Context, router Router) error {
	c.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		c.log.Info("Connected to Discord", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.onMessage(ctx, router, m)
	})

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	<-ctx.Done()
	c.log.Info("Closing Discord session")
	return c.session.Close()
}

func (c *Client) onMessage(ctx context.Context, router Router, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	req := bot.Request{
		Author:    c.member(ctx, m),
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	reply, ok := router.Handle(ctx, req)
	if !ok {
		return
	}
	if err := c.ChannelMessage(ctx, m.ChannelID, reply); err != nil {
		c.log.Warn("Failed to send reply", "channel_id", m.ChannelID, "user_id", m.Author.ID, "error", err)
	}
}

// member resolves the author's roles and effective permissions in the channel.
// A failed permission lookup leaves Permissions at zero.
func (c *Client) member(ctx context.Context, m *discordgo.MessageCreate) access.Member {
	mem := memberFromMessage(m)
	if !mem.InGuild() {
		return mem
	}
	perms, err := c.session.UserChannelPermissions(m.Author.ID, m.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		c.log.Warn("Failed to resolve permissions", "user_id", m.Author.ID, "channel_id", m.ChannelID, "error", err)
		return mem
	}
	mem.Permissions = perms
	return mem
}

func memberFromMessage(m *discordgo.MessageCreate) access.Member {
	mem := access.Member{UserID: m.Author.ID, GuildID: m.GuildID}
	if m.Member != nil {
		mem.RoleIDs = m.Member.Roles
		mem.Permissions = m.Member.Permissions
	}
	return mem
}

func (c *Client) DirectMessage(ctx context.Context, userID string, msg notify.Message) error {
	ch, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	return c.ChannelMessage(ctx, ch.ID, msg)
}

func (c *Client) ChannelMessage(ctx context.Context, channelID string, msg notify.Message) error {
	_, err := c.session.ChannelMessageSendEmbed(channelID, toEmbed(msg, time.Now()), discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	return nil
}

// classify maps "this user cannot be messaged" responses onto notify.ErrUnreachable.
func classify(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeCannotSendMessagesToThisUser, discordgo.ErrCodeUnknownUser:
			return fmt.Errorf("%w: %s", notify.ErrUnreachable, rest.Message.Message)
		}
	}
	return err
}

func toEmbed(msg notify.Message, now time.Time) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       truncate(msg.Title, maxTitle),
		Description: truncate(msg.Description, maxDescription),
		Color:       msg.Color,
		Timestamp:   now.UTC().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
	}
	for _, f := range msg.Fields {
		value := f.Value
		if value == "" {
			value = "-"
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   truncate(f.Name, maxFieldName),
			Value:  truncate(value, maxFieldValue),
			Inline: f.Inline,
		})
	}
	return e
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
