// Package notify defines the outbound messaging capability the shop uses to reach
// buyers and admins. Delivery is best effort: callers log failures and move on.
package notify

import (
	"context"
	"errors"
)

// Embed colours, shared by every surface.
const (
	ColorSuccess = 0x43B581
	ColorError   = 0xF04747
	ColorInfo    = 0x7289DA
	ColorWarning = 0xFAA61A
	ColorShop    = 0x36393F
	ColorPayment = 0x5865F2
	ColorProduct = 0x9B59B6
	ColorAdmin   = 0xE91E63
)

// ErrUnreachable is returned when the user cannot be messaged (DMs closed, unknown user).
var ErrUnreachable = errors.New("recipient unreachable")

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is a platform-neutral rich message.
type Message struct {
	Title       string
	Description string
	Color       int
	Fields      []Field
}

// AddField appends a field and returns the message for chaining.
func (m Message) AddField(name, value string, inline bool) Message {
	m.Fields = append(m.Fields, Field{Name: name, Value: value, Inline: inline})
	return m
}

type Notifier interface {
	// DirectMessage sends msg privately to userID.
	DirectMessage(ctx context.Context, userID string, msg Message) error
	// ChannelMessage posts msg to a channel.
	ChannelMessage(ctx context.Context, channelID string, msg Message) error
}
