package bot

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/alextreichler/shopbot/internal/notify"
	"github.com/alextreichler/shopbot/internal/shop"
)

// argError is a user input problem; its text is shown as is.
type argError struct {
	detail string
}

func (e *argError) Error() string { return e.detail }

func badArg(format string, a ...any) error {
	return &argError{detail: fmt.Sprintf(format, a...)}
}

func errorMessage(title, description string) notify.Message {
	return notify.Message{Title: title, Description: description, Color: notify.ColorError}
}

func denied() notify.Message {
	return errorMessage("🔒 Access Denied", "You don't have permission to use this command.")
}

func bannedMessage() notify.Message {
	return errorMessage("🚫 Banned", "You have been banned from using this shop.")
}

func somethingWentWrong() notify.Message {
	return errorMessage("⚠️ Something Went Wrong", "An unexpected error occurred. Please try again later.")
}

func (r *Router) invalid(detail string) notify.Message {
	return errorMessage("❌ Error: Invalid Argument",
		fmt.Sprintf("%s\nCheck `%shelp` for proper command usage.", detail, r.Prefix))
}

func (r *Router) missing(c *command) notify.Message {
	return errorMessage("❌ Error: Missing Argument",
		fmt.Sprintf("Usage: `%s%s`\nCheck `%shelp` for proper command usage.", r.Prefix, c.usage, r.Prefix))
}

// render maps a handler error onto the reply the user sees. Anything unexpected
// is logged and shown generically.
func (r *Router) render(log *slog.Logger, err error) notify.Message {
	var arg *argError
	switch {
	case errors.As(err, &arg):
		return r.invalid(arg.detail)
	case errors.Is(err, shop.ErrInvalidQuantity):
		return r.invalid("Quantity must be a whole number above zero.")
	case errors.Is(err, shop.ErrInvalidPrice):
		return r.invalid("Price must be a number above zero.")
	case errors.Is(err, shop.ErrInvalidStock):
		return r.invalid("Stock cannot be negative.")
	case errors.Is(err, shop.ErrInvalidProductName):
		return r.invalid("Product name cannot be empty.")
	case errors.Is(err, shop.ErrOrderNotFound):
		return errorMessage("❌ Order Not Found", "No order matches that ID or confirmation key.")
	case errors.Is(err, shop.ErrProductNotFound):
		return errorMessage("❌ Product Not Found",
			fmt.Sprintf("That product doesn't exist. Use `%sshop` to see what's available.", r.Prefix))
	case errors.Is(err, shop.ErrInsufficientStock):
		return errorMessage("📉 Insufficient Stock", "There isn't enough stock left for that order.")
	case errors.Is(err, shop.ErrDeliveryContentMissing):
		return errorMessage("📭 No Delivery Content",
			fmt.Sprintf("This product has no delivery link. Set one with `%ssetlink` or approve without AUTODELIVER and include a message.", r.Prefix))
	case errors.Is(err, shop.ErrAlreadyConfirmed):
		return notify.Message{Title: "ℹ️ Already Confirmed", Description: "Payment for this order has already been confirmed.", Color: notify.ColorInfo}
	case errors.Is(err, shop.ErrOrderClosed):
		return errorMessage("❌ Order Closed", "This order has already been delivered or cancelled.")
	case errors.Is(err, shop.ErrPriceUnavailable):
		log.Warn("Price feed unavailable", "error", err)
		return errorMessage("⏳ Price Unavailable", "The LTC price could not be fetched. Please try again in a minute.")
	case errors.Is(err, shop.ErrDuplicateProduct):
		return errorMessage("❌ Product Exists", "A product with that name already exists.")
	case errors.Is(err, shop.ErrProductInUse):
		return errorMessage("❌ Product In Use", "Orders reference this product, so it can't be removed. Set its stock to 0 instead.")
	}
	log.Error("Command failed", "error", err)
	return somethingWentWrong()
}
