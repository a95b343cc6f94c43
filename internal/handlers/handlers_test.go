package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alextreichler/shopbot/internal/clock"
	"github.com/alextreichler/shopbot/internal/models"
	"github.com/alextreichler/shopbot/internal/notify"
	"github.com/alextreichler/shopbot/internal/pricefeed"
	"github.com/alextreichler/shopbot/internal/shop"
	"github.com/alextreichler/shopbot/internal/store"
	"github.com/gorilla/sessions"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type nopNotifier struct{}

func (nopNotifier) DirectMessage(context.Context, string, notify.Message) error  { return nil }
func (nopNotifier) ChannelMessage(context.Context, string, notify.Message) error { return nil }

type server struct {
	handler http.Handler
	store   *store.Store
	shop    *shop.Service
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewStore(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := st.CreateUser(ctx, "admin", string(hash)); err != nil {
		t.Fatalf("create user: %v", err)
	}

	svc := shop.NewService(shop.Deps{
		Store:    st,
		Quoter:   pricefeed.Fixed{Rate: decimal.NewFromInt(80)},
		Notifier: nopNotifier{},
		Clock:    clock.NewFixed(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
	})

	templates := NewTemplateCache()
	if err := templates.Load(); err != nil {
		t.Fatalf("load templates: %v", err)
	}

	h := &AdminHandler{
		Store:        st,
		Shop:         svc,
		SessionStore: sessions.NewCookieStore([]byte(strings.Repeat("s", 32))),
		Templates:    templates,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("# metrics")) })
	mux := Routes(h, NewRateLimiter(100, time.Minute), metrics)
	return &server{handler: LoggingMiddleware(logger, SecurityHeadersMiddleware(mux)), store: st, shop: svc}
}

func (s *server) do(t *testing.T, method, target string, form url.Values, cookies []*http.Cookie) *http.Response {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec.Result()
}

func (s *server) login(t *testing.T) []*http.Cookie {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/login", url.Values{"username": {"admin"}, "password": {"hunter22"}}, nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/admin" {
		t.Fatalf("expected redirect to /admin, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	return resp.Cookies()
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestHealthzAndHeaders(t *testing.T) {
	t.Parallel()
	s := newServer(t)

	resp := s.do(t, http.MethodGet, "/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK || readBody(t, resp) != "ok" {
		t.Fatalf("expected ok, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Error("expected security headers")
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()
	s := newServer(t)

	resp := s.do(t, http.MethodGet, "/admin", nil, nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d", resp.StatusCode)
	}

	resp = s.do(t, http.MethodPost, "/login", url.Values{"username": {"admin"}, "password": {"wrong"}}, nil)
	if resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected bad password to bounce to /login, got %q", resp.Header.Get("Location"))
	}

	cookies := s.login(t)
	resp = s.do(t, http.MethodGet, "/admin", nil, cookies)
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Dashboard") {
		t.Fatalf("expected dashboard, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Welcome, admin!") {
		t.Error("expected the welcome flash")
	}
}

func TestOrderActions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newServer(t)
	cookies := s.login(t)

	if _, err := s.shop.AddProduct(ctx, shop.NewProduct{Name: "Widget", Price: decimal.NewFromInt(10), Stock: 5}); err != nil {
		t.Fatalf("add product: %v", err)
	}
	o, err := s.shop.PlaceOrder(ctx, "1001", "Widget", 2)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	id := url.Values{"id": {itoa(o.ID)}}

	resp := s.do(t, http.MethodGet, "/admin/orders", nil, cookies)
	if body := readBody(t, resp); !strings.Contains(body, o.ConfirmationKey) || !strings.Contains(body, "$20.00") {
		t.Fatalf("expected the order in the list")
	}

	resp = s.do(t, http.MethodPost, "/admin/orders/confirm", id, cookies)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	stored, _ := s.store.GetOrderByID(ctx, o.ID)
	if !stored.PaymentConfirmed || stored.Status != models.StatusPending {
		t.Fatalf("expected confirmed and pending, got %v/%s", stored.PaymentConfirmed, stored.Status)
	}

	s.do(t, http.MethodPost, "/admin/orders/approve", url.Values{"id": {itoa(o.ID)}, "auto_deliver": {"1"}}, cookies)
	stored, _ = s.store.GetOrderByID(ctx, o.ID)
	if stored.Status != models.StatusPending {
		t.Fatalf("expected approve without a link to leave the order pending, got %s", stored.Status)
	}

	resp = s.do(t, http.MethodPost, "/admin/products/link", url.Values{"id": {itoa(o.ProductID)}, "link": {"https://example.com/L"}}, cookies)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	s.do(t, http.MethodPost, "/admin/orders/approve", url.Values{"id": {itoa(o.ID)}, "auto_deliver": {"1"}}, cookies)
	stored, _ = s.store.GetOrderByID(ctx, o.ID)
	if stored.Status != models.StatusDelivered || stored.DeliveredAt == nil {
		t.Fatalf("expected delivered, got %s", stored.Status)
	}

	resp = s.do(t, http.MethodPost, "/admin/orders/confirm", url.Values{"id": {"abc"}}, cookies)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad id, got %d", resp.StatusCode)
	}

	resp = s.do(t, http.MethodGet, "/admin/products", nil, cookies)
	if body := readBody(t, resp); !strings.Contains(body, "https://example.com/L") {
		t.Fatalf("expected the product list to show the link")
	}
}

func TestApproveCancelledOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newServer(t)
	cookies := s.login(t)

	if _, err := s.shop.AddProduct(ctx, shop.NewProduct{Name: "Widget", Price: decimal.NewFromInt(10), Stock: 5, DeliveryLink: "https://example.com/L"}); err != nil {
		t.Fatalf("add product: %v", err)
	}
	o, err := s.shop.PlaceOrder(ctx, "1001", "Widget", 2)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	id := itoa(o.ID)

	s.do(t, http.MethodPost, "/admin/orders/cancel", url.Values{"id": {id}}, cookies)
	resp := s.do(t, http.MethodPost, "/admin/orders/approve", url.Values{"id": {id}, "auto_deliver": {"1"}}, cookies)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	stored, _ := s.store.GetOrderByID(ctx, o.ID)
	if stored.Status != models.StatusCancelled {
		t.Fatalf("expected the order to stay cancelled, got %s", stored.Status)
	}

	resp = s.do(t, http.MethodGet, "/admin/orders", nil, resp.Cookies())
	if body := readBody(t, resp); !strings.Contains(body, "already delivered or cancelled") {
		t.Fatalf("expected the closed-order flash")
	}
}

func TestMetricsRequiresLogin(t *testing.T) {
	t.Parallel()
	s := newServer(t)

	resp := s.do(t, http.MethodGet, "/metrics", nil, nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d", resp.StatusCode)
	}
	resp = s.do(t, http.MethodGet, "/metrics", nil, s.login(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected metrics for a logged-in admin, got %d", resp.StatusCode)
	}
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(2, time.Minute)
	now := time.Now()

	if !rl.allow("1.2.3.4", now) || !rl.allow("1.2.3.4", now) {
		t.Fatal("expected the first two requests through")
	}
	if rl.allow("1.2.3.4", now) {
		t.Fatal("expected the third request to be limited")
	}
	if !rl.allow("5.6.7.8", now) {
		t.Fatal("expected other clients to be unaffected")
	}
	if !rl.allow("1.2.3.4", now.Add(time.Minute)) {
		t.Fatal("expected a new window to reset the count")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
