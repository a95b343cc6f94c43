package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/alextreichler/shopbot/internal/shop"
)

const maxPageSize = 100

func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := (page - 1) * limit

	orders, total, err := h.Shop.RecentOrders(r.Context(), limit, offset)
	if err != nil {
		h.log().Error("Failed to list orders", "error", err, "request_id", RequestID(r.Context()))
		http.Error(w, "Error fetching orders", http.StatusInternalServerError)
		return
	}

	totalPages := (total + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}

	h.render(w, r, "admin_orders.html", map[string]interface{}{
		"Orders":      orders,
		"CurrentPage": page,
		"TotalPages":  totalPages,
		"Limit":       limit,
	})
}

func (h *AdminHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if _, err := h.Shop.ConfirmPaymentByID(r.Context(), id); err != nil {
		h.orderError(w, r, id, err)
		return
	}
	h.log().Info("Payment confirmed from dashboard", "order_id", id, "request_id", RequestID(r.Context()))
	h.flash(w, r, "success", fmt.Sprintf("Payment for order #%d confirmed.", id), "/admin/orders")
}

func (h *AdminHandler) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	in := shop.ApproveInput{
		OrderID:     id,
		AutoDeliver: r.FormValue("auto_deliver") != "",
		Message:     strings.TrimSpace(r.FormValue("message")),
	}
	if !in.AutoDeliver && in.Message == "" {
		h.flash(w, r, "error", "Tick the link box, write a message, or both.", "/admin/orders")
		return
	}

	res, err := h.Shop.Approve(r.Context(), in)
	if err != nil {
		h.orderError(w, r, id, err)
		return
	}
	h.log().Info("Order delivered from dashboard", "order_id", id, "auto_deliver", in.AutoDeliver, "request_id", RequestID(r.Context()))
	if !res.Notified {
		h.flash(w, r, "error", fmt.Sprintf("Order #%d marked delivered, but the buyer could not be messaged: %v", id, res.NotifyErr), "/admin/orders")
		return
	}
	h.flash(w, r, "success", fmt.Sprintf("Order #%d delivered.", id), "/admin/orders")
}

func (h *AdminHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if _, err := h.Shop.Cancel(r.Context(), id); err != nil {
		h.orderError(w, r, id, err)
		return
	}
	h.log().Info("Order cancelled from dashboard", "order_id", id, "request_id", RequestID(r.Context()))
	h.flash(w, r, "success", fmt.Sprintf("Order #%d cancelled.", id), "/admin/orders")
}

func (h *AdminHandler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *AdminHandler) orderError(w http.ResponseWriter, r *http.Request, id int64, err error) {
	var msg string
	switch {
	case errors.Is(err, shop.ErrOrderNotFound):
		msg = fmt.Sprintf("Order #%d not found.", id)
	case errors.Is(err, shop.ErrDeliveryContentMissing):
		msg = fmt.Sprintf("Order #%d: the product has no delivery link. Add one or send a message instead.", id)
	case errors.Is(err, shop.ErrOrderClosed):
		msg = fmt.Sprintf("Order #%d is already delivered or cancelled.", id)
	default:
		h.log().Error("Order action failed", "order_id", id, "error", err, "request_id", RequestID(r.Context()))
		msg = "Something went wrong. Check the logs."
	}
	h.flash(w, r, "error", msg, "/admin/orders")
}
