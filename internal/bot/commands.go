package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alextreichler/shopbot/internal/models"
	"github.com/alextreichler/shopbot/internal/notify"
	"github.com/alextreichler/shopbot/internal/shop"
)

// maxFields is the most fields a platform embed will take.
const maxFields = 25

func (r *Router) register() {
	r.add(&command{name: "help", usage: "help", summary: "Show this message", role: roleEveryone, run: r.help})
	r.add(&command{name: "shop", usage: "shop", summary: "Browse the products for sale", role: roleEveryone, run: r.shop})
	r.add(&command{name: "buy", usage: `buy "<product>" [quantity]`, summary: "Order a product", role: roleBuyer, minArgs: 1, run: r.buy})
	r.add(&command{name: "confirm", usage: "confirm <key>", summary: "Tell us you've sent the payment", role: roleBuyer, minArgs: 1, run: r.confirm})
	r.add(&command{name: "orders", usage: "orders", summary: "Show your recent orders", role: roleBuyer, run: r.orders})

	r.add(&command{name: "verify", usage: "verify <key>", summary: "Confirm an order's payment arrived", role: roleAdmin, minArgs: 1, run: r.verify})
	r.add(&command{name: "approve", usage: "approve <order id> [AUTODELIVER] [message]", summary: "Deliver an order", role: roleAdmin, minArgs: 1, run: r.approve})
	r.add(&command{name: "cancel", usage: "cancel <order id>", summary: "Cancel an order and restock", role: roleAdmin, minArgs: 1, run: r.cancel})
	r.add(&command{name: "pending", usage: "pending", summary: "List unpaid orders", role: roleAdmin, run: r.pending})
	r.add(&command{name: "addproduct", usage: `addproduct "<name>" <price> <stock> [description]`, summary: "Add a product", role: roleAdmin, minArgs: 3, run: r.addProduct})
	r.add(&command{name: "setprice", usage: `setprice "<product>" <price>`, summary: "Change a price", role: roleAdmin, minArgs: 2, run: r.setPrice})
	r.add(&command{name: "setstock", usage: `setstock "<product>" <stock>`, summary: "Change stock", role: roleAdmin, minArgs: 2, run: r.setStock})
	r.add(&command{name: "setlink", usage: `setlink "<product>" <url|none>`, summary: "Set the auto-delivery link", role: roleAdmin, minArgs: 2, run: r.setLink})
	r.add(&command{name: "setdesc", usage: `setdesc "<product>" <description>`, summary: "Change a description", role: roleAdmin, minArgs: 2, run: r.setDescription})
	r.add(&command{name: "removeproduct", usage: `removeproduct "<product>"`, summary: "Remove an unsold product", role: roleAdmin, minArgs: 1, run: r.removeProduct})
	r.add(&command{name: "ban", usage: "ban <@user> [reason]", summary: "Ban a user from the shop", role: roleAdmin, minArgs: 1, run: r.ban})
	r.add(&command{name: "unban", usage: "unban <@user>", summary: "Lift a ban", role: roleAdmin, minArgs: 1, run: r.unban})
	r.add(&command{name: "bans", usage: "bans", summary: "List banned users", role: roleAdmin, run: r.bans})
}

func (r *Router) help(_ context.Context, req Request, _ []string) (notify.Message, error) {
	msg := notify.Message{
		Title:       "🛒 Shop Commands",
		Description: fmt.Sprintf("Use `%s<command>`. Wrap names with spaces in double quotes.", r.Prefix),
		Color:       notify.ColorShop,
	}
	msg = msg.AddField("Shopping", r.commandList(r.sorted(roleEveryone)), false)
	if r.Guard.IsAdmin(req.Author) {
		msg = msg.AddField("Admin", r.commandList(r.sorted(roleAdmin)), false)
	}
	return msg, nil
}

func (r *Router) commandList(cmds []*command) string {
	var b strings.Builder
	for _, c := range cmds {
		fmt.Fprintf(&b, "`%s%s` %s\n", r.Prefix, c.usage, c.summary)
	}
	return b.String()
}

func (r *Router) shop(ctx context.Context, _ Request, _ []string) (notify.Message, error) {
	products, err := r.Shop.Products(ctx)
	if err != nil {
		return notify.Message{}, err
	}

	msg := notify.Message{Title: "🛍️ Shop", Color: notify.ColorProduct}
	if len(products) == 0 {
		msg.Description = "Nothing for sale right now. Check back soon!"
		return msg, nil
	}
	msg.Description = fmt.Sprintf("Buy with `%sbuy \"<product>\" [quantity]`.", r.Prefix)
	for i, p := range products {
		if i == maxFields {
			break
		}
		value := fmt.Sprintf("**Price:** $%s\n**Stock:** %d", p.Price.StringFixed(2), p.Stock)
		if p.Stock == 0 {
			value = fmt.Sprintf("**Price:** $%s\n**Out of stock**", p.Price.StringFixed(2))
		}
		if p.Description != "" {
			value += "\n" + p.Description
		}
		msg = msg.AddField(p.Name, value, true)
	}
	return msg, nil
}

func (r *Router) buy(ctx context.Context, req Request, args []string) (notify.Message, error) {
	qty := 1
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return notify.Message{}, badArg("Quantity must be a whole number, got %q.", args[1])
		}
		qty = n
	}

	o, err := r.Shop.PlaceOrder(ctx, req.Author.UserID, args[0], qty)
	if err != nil {
		return notify.Message{}, err
	}

	details := r.paymentDetails(o)
	if !req.Author.InGuild() {
		return details, nil
	}
	if err := r.Notifier.DirectMessage(ctx, req.Author.UserID, details); err != nil {
		r.log.Warn("Failed to DM payment details, replying in channel", "order_id", o.ID, "user_id", o.UserID, "error", err)
		return details, nil
	}
	return notify.Message{
		Title:       "📬 Check Your DMs",
		Description: fmt.Sprintf("Order #%d created. Payment instructions were sent to you privately.", o.ID),
		Color:       notify.ColorSuccess,
	}, nil
}

func (r *Router) paymentDetails(o *models.Order) notify.Message {
	return notify.Message{
		Title:       "🧾 Order Created",
		Description: fmt.Sprintf("Thanks for your order! Send the payment below, then run `%sconfirm %s`.", r.Prefix, o.ConfirmationKey),
		Color:       notify.ColorPayment,
	}.
		AddField("Order", fmt.Sprintf("#%d · %s × %d", o.ID, o.ProductName, o.Quantity), false).
		AddField("Total", "$"+o.TotalPrice.StringFixed(2), true).
		AddField("Send", o.CryptoAmount.String()+" LTC", true).
		AddField("LTC Address", "`"+r.LTCAddress+"`", false).
		AddField("Confirmation Key", "`"+o.ConfirmationKey+"`", false)
}

func (r *Router) confirm(ctx context.Context, req Request, args []string) (notify.Message, error) {
	if !shop.ValidKey(shop.NormalizeKey(args[0])) {
		return notify.Message{}, badArg("Confirmation keys are %d letters and digits.", shop.KeyLength)
	}
	o, err := r.Shop.ClaimPayment(ctx, req.Author.UserID, args[0])
	if err != nil {
		return notify.Message{}, err
	}
	return notify.Message{
		Title:       "⏳ Payment Noted",
		Description: fmt.Sprintf("Thanks! Staff will check the payment for order #%d and deliver it once it arrives.", o.ID),
		Color:       notify.ColorInfo,
	}, nil
}

func (r *Router) orders(ctx context.Context, req Request, _ []string) (notify.Message, error) {
	orders, err := r.Shop.Orders(ctx, req.Author.UserID)
	if err != nil {
		return notify.Message{}, err
	}
	msg := notify.Message{Title: "📋 Your Orders", Color: notify.ColorInfo}
	if len(orders) == 0 {
		msg.Description = fmt.Sprintf("You haven't ordered anything yet. Try `%sshop`.", r.Prefix)
		return msg, nil
	}
	for _, o := range orders {
		msg = msg.AddField(fmt.Sprintf("#%d · %s × %d", o.ID, o.ProductName, o.Quantity), orderSummary(&o, true), false)
	}
	return msg, nil
}

func orderSummary(o *models.Order, withKey bool) string {
	payment := "awaiting payment"
	if o.PaymentConfirmed {
		payment = "payment confirmed"
	}
	s := fmt.Sprintf("**Status:** %s (%s)\n**Total:** $%s / %s LTC",
		o.Status, payment, o.TotalPrice.StringFixed(2), o.CryptoAmount.String())
	if withKey && o.Status == models.StatusPending && !o.PaymentConfirmed {
		s += fmt.Sprintf("\n**Key:** `%s`", o.ConfirmationKey)
	}
	return s
}

func parseOrderID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badArg("Order ID must be a number, got %q.", s)
	}
	return id, nil
}
