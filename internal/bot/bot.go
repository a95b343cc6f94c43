// Package bot is the chat command surface: it parses prefixed commands, checks
// who may run them and turns shop results and errors into reply messages.
package bot

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/alextreichler/shopbot/internal/access"
	"github.com/alextreichler/shopbot/internal/metrics"
	"github.com/alextreichler/shopbot/internal/notify"
	"github.com/alextreichler/shopbot/internal/shop"
)

// Deps is everything a command handler may use.
type Deps struct {
	Shop     *shop.Service
	Guard    *access.Guard
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	Prefix     string
	LTCAddress string
}

// Request is one incoming chat message.
type Request struct {
	Author    access.Member
	ChannelID string
	Content   string
}

type role int

const (
	roleEveryone role = iota
	roleBuyer         // anyone who is not banned
	roleAdmin
)

type handlerFunc func(ctx context.Context, req Request, args []string) (notify.Message, error)

type command struct {
	name    string
	usage   string
	summary string
	role    role
	minArgs int
	run     handlerFunc
}

type Router struct {
	Deps
	commands map[string]*command
	log      *slog.Logger
}

func NewRouter(d Deps) *Router {
	if d.Prefix == "" {
		d.Prefix = "s!"
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	r := &Router{
		Deps:     d,
		commands: make(map[string]*command),
		log:      d.Logger.With("component", "bot"),
	}
	r.register()
	return r
}

func (r *Router) add(c *command) {
	r.commands[c.name] = c
}

// Handle runs the command in req. It reports false when the message is not a
// command this router knows, in which case nothing should be sent back.
func (r *Router) Handle(ctx context.Context, req Request) (notify.Message, bool) {
	content := strings.TrimSpace(req.Content)
	if !strings.HasPrefix(content, r.Prefix) {
		return notify.Message{}, false
	}

	line := strings.TrimPrefix(content, r.Prefix)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return notify.Message{}, false
	}
	cmd, ok := r.commands[strings.ToLower(fields[0])]
	if !ok {
		return notify.Message{}, false
	}

	log := r.log.With("command", cmd.name, "user_id", req.Author.UserID)
	tokens, err := Tokenize(line)
	if err != nil {
		r.count(cmd, "error")
		return r.invalid("Unbalanced quotes. Wrap multi-word values in double quotes."), true
	}
	args := tokens[1:]

	switch cmd.role {
	case roleAdmin:
		if !r.Guard.IsAdmin(req.Author) {
			r.count(cmd, "denied")
			log.Warn("Admin command denied")
			return denied(), true
		}
	case roleBuyer:
		banned, err := r.Guard.IsBanned(ctx, req.Author.UserID)
		if err != nil {
			r.count(cmd, "error")
			log.Error("Ban check failed", "error", err)
			return somethingWentWrong(), true
		}
		if banned {
			r.count(cmd, "denied")
			log.Info("Banned user tried a command")
			return bannedMessage(), true
		}
	}

	if len(args) < cmd.minArgs {
		r.count(cmd, "error")
		return r.missing(cmd), true
	}

	reply, err := cmd.run(ctx, req, args)
	if err != nil {
		r.count(cmd, "error")
		return r.render(log, err), true
	}
	r.count(cmd, "ok")
	log.Debug("Command handled")
	return reply, true
}

func (r *Router) count(c *command, outcome string) {
	r.Metrics.Commands.WithLabelValues(c.name, outcome).Inc()
}

// sorted returns the commands for role in name order.
func (r *Router) sorted(want role) []*command {
	var out []*command
	for _, c := range r.commands {
		if (want == roleAdmin) == (c.role == roleAdmin) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
