package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/alextreichler/shopbot/internal/shop"
)

func (h *AdminHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Shop.Products(r.Context())
	if err != nil {
		h.log().Error("Failed to list products", "error", err, "request_id", RequestID(r.Context()))
		http.Error(w, "Error fetching products", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "admin_products.html", map[string]interface{}{"Products": products})
}

// UpdateDeliveryLink sets or clears (empty value) a product's delivery link.
func (h *AdminHandler) UpdateDeliveryLink(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}
	link := strings.TrimSpace(r.FormValue("link"))

	p, err := h.Shop.SetDeliveryLinkByID(r.Context(), id, link)
	if errors.Is(err, shop.ErrProductNotFound) {
		h.flash(w, r, "error", fmt.Sprintf("Product #%d not found.", id), "/admin/products")
		return
	}
	if err != nil {
		h.log().Error("Failed to update delivery link", "product_id", id, "error", err, "request_id", RequestID(r.Context()))
		h.flash(w, r, "error", "Error updating product.", "/admin/products")
		return
	}
	h.flash(w, r, "success", fmt.Sprintf("Delivery link for %s saved.", p.Name), "/admin/products")
}
