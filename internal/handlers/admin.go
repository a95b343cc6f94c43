package handlers

import (
	"log/slog"
	"net/http"

	"github.com/alextreichler/shopbot/internal/shop"
	"github.com/alextreichler/shopbot/internal/store"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
)

const sessionName = "admin-session"

// AdminHandler serves the operator dashboard. Orders and products go through
// Shop so the web and chat surfaces share one set of rules.
type AdminHandler struct {
	Store        *store.Store
	Shop         *shop.Service
	SessionStore sessions.Store
	Templates    *TemplateCache
	Logger       *slog.Logger
}

func (h *AdminHandler) log() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// render executes the named page with the common fields filled in and saves
// the session so consumed flashes are cleared.
func (h *AdminHandler) render(w http.ResponseWriter, r *http.Request, name string, data map[string]interface{}) {
	tmpl := h.Templates.Get(name)
	if tmpl == nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}
	session, _ := h.SessionStore.Get(r, sessionName)
	if data == nil {
		data = make(map[string]interface{})
	}
	data["CsrfField"] = csrf.TemplateField(r)
	data["Flashes"] = GetFlash(session)
	data["Authenticated"] = isAuthenticated(session)
	if err := session.Save(r, w); err != nil {
		h.log().Error("Failed to save session", "error", err, "request_id", RequestID(r.Context()))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.log().Error("Failed to render template", "template", name, "error", err, "request_id", RequestID(r.Context()))
	}
}

// flash adds a message and redirects to target.
func (h *AdminHandler) flash(w http.ResponseWriter, r *http.Request, kind, msg, target string) {
	session, _ := h.SessionStore.Get(r, sessionName)
	session.AddFlash(FlashMessage{Type: kind, Message: msg})
	if err := session.Save(r, w); err != nil {
		h.log().Error("Failed to save session", "error", err, "request_id", RequestID(r.Context()))
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func isAuthenticated(session *sessions.Session) bool {
	auth, ok := session.Values["authenticated"].(bool)
	return ok && auth
}

func (h *AdminHandler) LoginGet(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login.html", nil)
}

func (h *AdminHandler) LoginPost(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	user, err := h.Store.GetUserByUsername(r.Context(), username)
	if err != nil {
		h.log().Error("Failed to look up admin user", "error", err, "request_id", RequestID(r.Context()))
		h.flash(w, r, "error", "Internal Server Error", "/login")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		h.log().Warn("Failed login", "username", username, "ip", clientIP(r))
		h.flash(w, r, "error", "Invalid username or password", "/login")
		return
	}

	session, _ := h.SessionStore.Get(r, sessionName)
	session.Values["authenticated"] = true
	session.Values["user_id"] = user.ID
	session.Options.Path = "/"
	session.AddFlash(FlashMessage{Type: "success", Message: "Welcome, " + user.Username + "!"})
	if err := session.Save(r, w); err != nil {
		h.log().Error("Failed to save session", "error", err)
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}

	h.log().Info("Login successful", "user_id", user.ID, "request_id", RequestID(r.Context()))
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.SessionStore.Get(r, sessionName)
	session.Values["authenticated"] = false
	session.Options.MaxAge = -1 // Expire immediately
	session.Save(r, w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// AuthMiddleware ensures the user is logged in
func (h *AdminHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := h.SessionStore.Get(r, sessionName)
		if !isAuthenticated(session) {
			h.log().Debug("Unauthenticated request, redirecting to /login", "path", r.URL.Path)
			h.flash(w, r, "error", "You must be logged in to access this page.", "/login")
			return
		}
		next(w, r)
	}
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.GetDashboardStats(r.Context())
	if err != nil {
		h.log().Error("Failed to load dashboard stats", "error", err, "request_id", RequestID(r.Context()))
		http.Error(w, "Error fetching stats", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "admin.html", map[string]interface{}{"Stats": stats})
}

// Healthz reports whether the database answers.
func (h *AdminHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		h.log().Error("Health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
