package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alextreichler/shopbot/internal/notify"
	"github.com/alextreichler/shopbot/internal/shop"
	"github.com/shopspring/decimal"
)

func (r *Router) verify(ctx context.Context, req Request, args []string) (notify.Message, error) {
	o, err := r.Shop.ConfirmPayment(ctx, args[0])
	if err != nil {
		return notify.Message{}, err
	}
	r.log.Info("Payment verified from chat", "order_id", o.ID, "by", req.Author.UserID)
	return notify.Message{
		Title:       "✅ Payment Verified",
		Description: fmt.Sprintf("Order #%d from <@%s> is marked as paid.", o.ID, o.UserID),
		Color:       notify.ColorSuccess,
	}.AddField("Next step", fmt.Sprintf("`%sapprove %d AUTODELIVER`", r.Prefix, o.ID), false), nil
}

func (r *Router) approve(ctx context.Context, req Request, args []string) (notify.Message, error) {
	id, err := parseOrderID(args[0])
	if err != nil {
		return notify.Message{}, err
	}
	in := shop.ApproveInput{OrderID: id}
	rest := args[1:]
	if len(rest) > 0 && strings.EqualFold(rest[0], "AUTODELIVER") {
		in.AutoDeliver = true
		rest = rest[1:]
	}
	in.Message = strings.Join(rest, " ")
	if !in.AutoDeliver && in.Message == "" {
		return notify.Message{}, badArg("Give AUTODELIVER, a message for the buyer, or both.")
	}

	res, err := r.Shop.Approve(ctx, in)
	if err != nil {
		return notify.Message{}, err
	}
	r.log.Info("Order approved from chat", "order_id", id, "by", req.Author.UserID, "auto_deliver", in.AutoDeliver)

	if !res.Notified {
		return notify.Message{
			Title:       "⚠️ Delivered, Buyer Not Notified",
			Description: fmt.Sprintf("Order #%d is marked delivered, but <@%s> could not be messaged: %v", id, res.Order.UserID, res.NotifyErr),
			Color:       notify.ColorWarning,
		}, nil
	}
	return notify.Message{
		Title:       "📦 Order Delivered",
		Description: fmt.Sprintf("Order #%d was delivered to <@%s>.", id, res.Order.UserID),
		Color:       notify.ColorSuccess,
	}, nil
}

func (r *Router) cancel(ctx context.Context, req Request, args []string) (notify.Message, error) {
	id, err := parseOrderID(args[0])
	if err != nil {
		return notify.Message{}, err
	}
	o, err := r.Shop.Cancel(ctx, id)
	if err != nil {
		return notify.Message{}, err
	}
	r.log.Info("Order cancelled from chat", "order_id", id, "by", req.Author.UserID)
	return notify.Message{
		Title:       "🚫 Order Cancelled",
		Description: fmt.Sprintf("Order #%d is cancelled and %d × %s went back into stock.", o.ID, o.Quantity, o.ProductName),
		Color:       notify.ColorWarning,
	}, nil
}

func (r *Router) pending(ctx context.Context, _ Request, _ []string) (notify.Message, error) {
	orders, err := r.Shop.Pending(ctx)
	if err != nil {
		return notify.Message{}, err
	}
	msg := notify.Message{Title: "💸 Unpaid Orders", Color: notify.ColorAdmin}
	if len(orders) == 0 {
		msg.Description = "No orders are waiting for payment."
		return msg, nil
	}
	msg.Description = fmt.Sprintf("%d order(s) awaiting payment.", len(orders))
	for i, o := range orders {
		if i == maxFields {
			break
		}
		msg = msg.AddField(
			fmt.Sprintf("#%d · %s × %d", o.ID, o.ProductName, o.Quantity),
			fmt.Sprintf("<@%s>\n$%s / %s LTC\nKey `%s`", o.UserID, o.TotalPrice.StringFixed(2), o.CryptoAmount.String(), o.ConfirmationKey),
			true)
	}
	return msg, nil
}

func (r *Router) addProduct(ctx context.Context, _ Request, args []string) (notify.Message, error) {
	price, err := parsePrice(args[1])
	if err != nil {
		return notify.Message{}, err
	}
	stock, err := parseStock(args[2])
	if err != nil {
		return notify.Message{}, err
	}
	p, err := r.Shop.AddProduct(ctx, shop.NewProduct{
		Name:        args[0],
		Price:       price,
		Stock:       stock,
		Description: strings.Join(args[3:], " "),
	})
	if err != nil {
		return notify.Message{}, err
	}
	return notify.Message{
		Title:       "✅ Product Added",
		Description: fmt.Sprintf("**%s** at $%s with %d in stock.", p.Name, p.Price.StringFixed(2), p.Stock),
		Color:       notify.ColorProduct,
	}.AddField("Auto-delivery", fmt.Sprintf("Set a link with `%ssetlink \"%s\" <url>`.", r.Prefix, p.Name), false), nil
}

func (r *Router) setPrice(ctx context.Context, _ Request, args []string) (notify.Message, error) {
	price, err := parsePrice(args[1])
	if err != nil {
		return notify.Message{}, err
	}
	p, err := r.Shop.SetPrice(ctx, args[0], price)
	if err != nil {
		return notify.Message{}, err
	}
	return productUpdated(p.Name, "Price is now $"+p.Price.StringFixed(2)), nil
}

func (r *Router) setStock(ctx context.Context, _ Request, args []string) (notify.Message, error) {
	stock, err := parseStock(args[1])
	if err != nil {
		return notify.Message{}, err
	}
	p, err := r.Shop.SetStock(ctx, args[0], stock)
	if err != nil {
		return notify.Message{}, err
	}
	return productUpdated(p.Name, fmt.Sprintf("Stock is now %d", p.Stock)), nil
}

func (r *Router) setLink(ctx context.Context, _ Request, args []string) (notify.Message, error) {
	link := args[1]
	if strings.EqualFold(link, "none") {
		link = ""
	}
	p, err := r.Shop.SetDeliveryLink(ctx, args[0], link)
	if err != nil {
		return notify.Message{}, err
	}
	if p.DeliveryLink == "" {
		return productUpdated(p.Name, "Delivery link cleared. AUTODELIVER will be refused."), nil
	}
	return productUpdated(p.Name, "Delivery link set."), nil
}

func (r *Router) setDescription(ctx context.Context, _ Request, args []string) (notify.Message, error) {
	p, err := r.Shop.SetDescription(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return notify.Message{}, err
	}
	return productUpdated(p.Name, "Description updated."), nil
}

func (r *Router) removeProduct(ctx context.Context, _ Request, args []string) (notify.Message, error) {
	if err := r.Shop.RemoveProduct(ctx, args[0]); err != nil {
		return notify.Message{}, err
	}
	return notify.Message{
		Title:       "🗑️ Product Removed",
		Description: fmt.Sprintf("**%s** is no longer for sale.", args[0]),
		Color:       notify.ColorProduct,
	}, nil
}

func (r *Router) ban(ctx context.Context, req Request, args []string) (notify.Message, error) {
	userID, err := parseUserID(args[0])
	if err != nil {
		return notify.Message{}, err
	}
	reason := strings.Join(args[1:], " ")
	if reason == "" {
		reason = "No reason given"
	}
	if err := r.Guard.Ban(ctx, userID, reason, req.Author.UserID); err != nil {
		return notify.Message{}, err
	}
	return notify.Message{
		Title:       "🔨 User Banned",
		Description: fmt.Sprintf("<@%s> can no longer use the shop.", userID),
		Color:       notify.ColorAdmin,
	}.AddField("Reason", reason, false), nil
}

func (r *Router) unban(ctx context.Context, req Request, args []string) (notify.Message, error) {
	userID, err := parseUserID(args[0])
	if err != nil {
		return notify.Message{}, err
	}
	if err := r.Guard.Unban(ctx, userID, req.Author.UserID); err != nil {
		return notify.Message{}, err
	}
	return notify.Message{
		Title:       "🕊️ User Unbanned",
		Description: fmt.Sprintf("<@%s> can use the shop again.", userID),
		Color:       notify.ColorAdmin,
	}, nil
}

func (r *Router) bans(ctx context.Context, _ Request, _ []string) (notify.Message, error) {
	entries, err := r.Guard.Bans(ctx)
	if err != nil {
		return notify.Message{}, err
	}
	msg := notify.Message{Title: "🔨 Banned Users", Color: notify.ColorAdmin}
	if len(entries) == 0 {
		msg.Description = "Nobody is banned."
		return msg, nil
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "<@%s> since %s: %s\n", e.UserID, e.BannedAt.Format("2006-01-02"), e.Reason)
	}
	msg.Description = b.String()
	return msg, nil
}

func productUpdated(name, detail string) notify.Message {
	return notify.Message{
		Title:       "✏️ Product Updated",
		Description: fmt.Sprintf("**%s**: %s", name, detail),
		Color:       notify.ColorProduct,
	}
}

func parsePrice(s string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimPrefix(s, "$"))
	if err != nil {
		return decimal.Zero, badArg("Price must be a number like 9.99, got %q.", s)
	}
	return price, nil
}

func parseStock(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, badArg("Stock must be a whole number, got %q.", s)
	}
	return n, nil
}

// parseUserID accepts a raw snowflake or a mention (<@id> or <@!id>).
func parseUserID(s string) (string, error) {
	id := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(s, "<@"), "!"), ">")
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", badArg("Expected a user mention or ID, got %q.", s)
	}
	return id, nil
}
