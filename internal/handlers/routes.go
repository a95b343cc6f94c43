package handlers

import (
	"net/http"
)

// Routes registers the dashboard on a new mux. metrics may be nil; when set it
// sits behind the login like the rest of the dashboard.
func Routes(h *AdminHandler, loginLimiter *RateLimiter, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	if metrics != nil {
		mux.HandleFunc("GET /metrics", h.AuthMiddleware(metrics.ServeHTTP))
	}

	mux.HandleFunc("GET /login", h.LoginGet)
	mux.HandleFunc("POST /login", loginLimiter.Middleware(h.LoginPost))
	mux.HandleFunc("/logout", h.Logout)

	// Protected Routes
	mux.HandleFunc("GET /admin", h.AuthMiddleware(h.Dashboard))
	mux.HandleFunc("GET /admin/orders", h.AuthMiddleware(h.ListOrders))
	mux.HandleFunc("POST /admin/orders/confirm", h.AuthMiddleware(h.ConfirmPayment))
	mux.HandleFunc("POST /admin/orders/approve", h.AuthMiddleware(h.ApproveOrder))
	mux.HandleFunc("POST /admin/orders/cancel", h.AuthMiddleware(h.CancelOrder))
	mux.HandleFunc("GET /admin/products", h.AuthMiddleware(h.ListProducts))
	mux.HandleFunc("POST /admin/products/link", h.AuthMiddleware(h.UpdateDeliveryLink))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
	})
	return mux
}
