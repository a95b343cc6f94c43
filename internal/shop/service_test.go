package shop

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alextreichler/shopbot/internal/clock"
	"github.com/alextreichler/shopbot/internal/models"
	"github.com/alextreichler/shopbot/internal/notify"
	"github.com/alextreichler/shopbot/internal/pricefeed"
	"github.com/alextreichler/shopbot/internal/store"
	"github.com/shopspring/decimal"
)

type sentMessage struct {
	to  string
	msg notify.Message
}

type fakeNotifier struct {
	mu       sync.Mutex
	dms      []sentMessage
	channels []sentMessage
	err      error
}

func (f *fakeNotifier) DirectMessage(_ context.Context, userID string, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.dms = append(f.dms, sentMessage{to: userID, msg: msg})
	return nil
}

func (f *fakeNotifier) ChannelMessage(_ context.Context, channelID string, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.channels = append(f.channels, sentMessage{to: channelID, msg: msg})
	return nil
}

type failingQuoter struct{}

func (failingQuoter) Quote(context.Context, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("feed down")
}

type fixture struct {
	svc      *Service
	store    *store.Store
	notifier *fakeNotifier
	clock    *clock.Fixed
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()

	st, err := store.NewStore(filepath.Join(t.TempDir(), "shop.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	f := &fixture{
		store:    st,
		notifier: &fakeNotifier{},
		clock:    clock.NewFixed(time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)),
	}
	d := Deps{
		Store:          st,
		Quoter:         pricefeed.Fixed{Rate: decimal.NewFromInt(80)},
		Notifier:       f.notifier,
		Clock:          f.clock,
		AdminChannelID: "900",
	}
	for _, opt := range opts {
		opt(&d)
	}
	f.svc = NewService(d)
	return f
}

func (f *fixture) addProduct(t *testing.T, name, price string, stock int, link string) *models.Product {
	t.Helper()
	p, err := f.svc.AddProduct(context.Background(), NewProduct{
		Name:         name,
		Price:        decimal.RequireFromString(price),
		Stock:        stock,
		DeliveryLink: link,
	})
	if err != nil {
		t.Fatalf("failed to add product: %v", err)
	}
	return p
}

func TestOrderLifecycleScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.addProduct(t, "Widget", "10.00", 5, "L")

	o, err := f.svc.PlaceOrder(ctx, "1001", "Widget", 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !o.TotalPrice.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("expected total 20.00, got %s", o.TotalPrice)
	}
	if o.Status != models.StatusPending || o.PaymentConfirmed {
		t.Fatalf("expected pending/unconfirmed, got %s/%v", o.Status, o.PaymentConfirmed)
	}
	if !o.CryptoAmount.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("expected 0.25 LTC, got %s", o.CryptoAmount)
	}
	if !ValidKey(o.ConfirmationKey) {
		t.Fatalf("expected a valid confirmation key, got %q", o.ConfirmationKey)
	}
	if !o.CreatedAt.Equal(f.clock.Now()) {
		t.Fatalf("expected created_at %v, got %v", f.clock.Now(), o.CreatedAt)
	}

	p, _ := f.store.GetProductByName(ctx, "Widget")
	if p.Stock != 3 {
		t.Fatalf("expected stock 3 after purchase, got %d", p.Stock)
	}

	f.clock.Advance(time.Hour)
	confirmed, err := f.svc.ConfirmPayment(ctx, strings.ToLower(o.ConfirmationKey))
	if err != nil {
		t.Fatalf("expected no error confirming, got %v", err)
	}
	if !confirmed.PaymentConfirmed {
		t.Fatalf("expected payment confirmed")
	}
	stored, _ := f.store.GetOrderByID(ctx, o.ID)
	if !stored.PaymentConfirmed || stored.Status != models.StatusPending {
		t.Fatalf("expected confirmed and still pending, got %v/%s", stored.PaymentConfirmed, stored.Status)
	}
	if stored.PaidAt == nil || !stored.PaidAt.Equal(f.clock.Now()) {
		t.Fatalf("expected paid_at %v, got %v", f.clock.Now(), stored.PaidAt)
	}

	f.clock.Advance(time.Hour)
	res, err := f.svc.Approve(ctx, ApproveInput{OrderID: o.ID, AutoDeliver: true})
	if err != nil {
		t.Fatalf("expected no error approving, got %v", err)
	}
	if !res.Notified {
		t.Fatalf("expected buyer to be notified, got %v", res.NotifyErr)
	}
	stored, _ = f.store.GetOrderByID(ctx, o.ID)
	if stored.Status != models.StatusDelivered {
		t.Fatalf("expected delivered, got %s", stored.Status)
	}
	if stored.DeliveredAt == nil || !stored.DeliveredAt.Equal(f.clock.Now()) {
		t.Fatalf("expected delivered_at %v, got %v", f.clock.Now(), stored.DeliveredAt)
	}

	last := f.notifier.dms[len(f.notifier.dms)-1]
	if last.to != "1001" {
		t.Fatalf("expected delivery DM to 1001, got %s", last.to)
	}
	var gotLink bool
	for _, field := range last.msg.Fields {
		if field.Value == "L" {
			gotLink = true
		}
	}
	if !gotLink {
		t.Fatalf("expected delivery message to carry the link, got %+v", last.msg)
	}
}

func TestApproveWithoutDeliveryLink(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.addProduct(t, "Widget", "10.00", 5, "")

	o, err := f.svc.PlaceOrder(ctx, "1001", "Widget", 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	_, err = f.svc.Approve(ctx, ApproveInput{OrderID: o.ID, AutoDeliver: true})
	if !errors.Is(err, ErrDeliveryContentMissing) {
		t.Fatalf("expected ErrDeliveryContentMissing, got %v", err)
	}
	stored, _ := f.store.GetOrderByID(ctx, o.ID)
	if stored.Status != models.StatusPending || stored.DeliveredAt != nil {
		t.Fatalf("expected order untouched, got %s/%v", stored.Status, stored.DeliveredAt)
	}
	if len(f.notifier.dms) != 0 {
		t.Fatalf("expected no messages, got %d", len(f.notifier.dms))
	}

	t.Run("manual delivery with custom message still works", func(t *testing.T) {
		res, err := f.svc.Approve(ctx, ApproveInput{OrderID: o.ID, Message: "check your inbox"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Order.Status != models.StatusDelivered {
			t.Fatalf("expected delivered, got %s", res.Order.Status)
		}
		msg := f.notifier.dms[len(f.notifier.dms)-1].msg
		if len(msg.Fields) != 1 || msg.Fields[0].Value != "check your inbox" {
			t.Fatalf("expected the custom message, got %+v", msg.Fields)
		}
	})
}

func TestApproveNotificationFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.addProduct(t, "Widget", "10.00", 5, "L")
	o, _ := f.svc.PlaceOrder(ctx, "1001", "Widget", 1)

	f.notifier.err = notify.ErrUnreachable
	res, err := f.svc.Approve(ctx, ApproveInput{OrderID: o.ID, AutoDeliver: true})
	if err != nil {
		t.Fatalf("expected delivery to succeed despite DM failure, got %v", err)
	}
	if res.Notified || !errors.Is(res.NotifyErr, notify.ErrUnreachable) {
		t.Fatalf("expected notify failure to be reported, got %+v", res)
	}
	stored, _ := f.store.GetOrderByID(ctx, o.ID)
	if stored.Status != models.StatusDelivered {
		t.Fatalf("expected delivered, got %s", stored.Status)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.Approve(ctx, ApproveInput{OrderID: 42}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := f.svc.ConfirmPayment(ctx, "ZZZZZZZZ"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := f.svc.ConfirmPayment(ctx, "bad key!"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for malformed key, got %v", err)
	}
	if _, err := f.svc.Cancel(ctx, 42); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := f.svc.PlaceOrder(ctx, "1", "Nothing", 1); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("quantity", func(t *testing.T) {
		f := newFixture(t)
		f.addProduct(t, "Widget", "10.00", 5, "")
		for _, qty := range []int{0, -1} {
			if _, err := f.svc.PlaceOrder(ctx, "1", "Widget", qty); !errors.Is(err, ErrInvalidQuantity) {
				t.Fatalf("expected ErrInvalidQuantity for %d, got %v", qty, err)
			}
		}
	})

	t.Run("stock", func(t *testing.T) {
		f := newFixture(t)
		f.addProduct(t, "Widget", "10.00", 1, "")
		if _, err := f.svc.PlaceOrder(ctx, "1", "Widget", 2); !errors.Is(err, ErrInsufficientStock) {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
	})

	t.Run("price feed down returns stock", func(t *testing.T) {
		f := newFixture(t, func(d *Deps) { d.Quoter = failingQuoter{} })
		f.addProduct(t, "Widget", "10.00", 2, "")
		if _, err := f.svc.PlaceOrder(ctx, "1", "Widget", 2); !errors.Is(err, ErrPriceUnavailable) {
			t.Fatalf("expected ErrPriceUnavailable, got %v", err)
		}
		p, _ := f.store.GetProductByName(ctx, "Widget")
		if p.Stock != 2 {
			t.Fatalf("expected stock restored to 2, got %d", p.Stock)
		}
	})
}

func TestConfirmationKeyCollision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("regenerates on collision", func(t *testing.T) {
		keys := []string{"AAAAAAAA", "AAAAAAAA", "BBBBBBBB"}
		f := newFixture(t, func(d *Deps) {
			d.NewKey = func() (string, error) {
				k := keys[0]
				keys = keys[1:]
				return k, nil
			}
		})
		f.addProduct(t, "Widget", "10.00", 5, "")

		first, err := f.svc.PlaceOrder(ctx, "1", "Widget", 1)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		second, err := f.svc.PlaceOrder(ctx, "2", "Widget", 1)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if first.ConfirmationKey != "AAAAAAAA" || second.ConfirmationKey != "BBBBBBBB" {
			t.Fatalf("unexpected keys %s, %s", first.ConfirmationKey, second.ConfirmationKey)
		}
	})

	t.Run("gives up after repeated collisions", func(t *testing.T) {
		f := newFixture(t, func(d *Deps) {
			d.NewKey = func() (string, error) { return "CCCCCCCC", nil }
		})
		f.addProduct(t, "Widget", "10.00", 5, "")

		if _, err := f.svc.PlaceOrder(ctx, "1", "Widget", 1); err != nil {
			t.Fatalf("expected first order to succeed, got %v", err)
		}
		if _, err := f.svc.PlaceOrder(ctx, "2", "Widget", 1); !errors.Is(err, ErrKeyExhausted) {
			t.Fatalf("expected ErrKeyExhausted, got %v", err)
		}
		p, _ := f.store.GetProductByName(ctx, "Widget")
		if p.Stock != 4 {
			t.Fatalf("expected stock 4, got %d", p.Stock)
		}
	})
}

func TestClaimPayment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.addProduct(t, "Widget", "10.00", 5, "")
	o, _ := f.svc.PlaceOrder(ctx, "1001", "Widget", 1)

	if _, err := f.svc.ClaimPayment(ctx, "2002", o.ConfirmationKey); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected someone else's key to look missing, got %v", err)
	}

	if _, err := f.svc.ClaimPayment(ctx, "1001", o.ConfirmationKey); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(f.notifier.channels) != 1 || f.notifier.channels[0].to != "900" {
		t.Fatalf("expected one admin channel notice, got %+v", f.notifier.channels)
	}
	stored, _ := f.store.GetOrderByID(ctx, o.ID)
	if stored.PaymentConfirmed {
		t.Fatalf("a buyer claim must not confirm payment")
	}

	if _, err := f.svc.ConfirmPayment(ctx, o.ConfirmationKey); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := f.svc.ClaimPayment(ctx, "1001", o.ConfirmationKey); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
	}
}

func TestClaimPaymentUsesCommandPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, func(d *Deps) { d.Prefix = "!" })
	f.addProduct(t, "Widget", "10.00", 5, "")
	o, _ := f.svc.PlaceOrder(ctx, "1001", "Widget", 1)

	if _, err := f.svc.ClaimPayment(ctx, "1001", o.ConfirmationKey); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(f.notifier.channels) != 1 {
		t.Fatalf("expected one admin channel notice, got %d", len(f.notifier.channels))
	}
	want := "`!verify " + o.ConfirmationKey + "`"
	var found bool
	for _, field := range f.notifier.channels[0].msg.Fields {
		if strings.Contains(field.Value, want) {
			found = true
		}
		if strings.Contains(field.Value, "s!verify") {
			t.Fatalf("expected the configured prefix, got %q", field.Value)
		}
	}
	if !found {
		t.Fatalf("expected a field containing %s, got %+v", want, f.notifier.channels[0].msg.Fields)
	}
}

func TestConfirmPaymentTwiceKeepsFirstTimestamp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.addProduct(t, "Widget", "10.00", 5, "")
	o, _ := f.svc.PlaceOrder(ctx, "1001", "Widget", 1)

	first := f.clock.Now()
	if _, err := f.svc.ConfirmPaymentByID(ctx, o.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	f.clock.Advance(time.Hour)
	if _, err := f.svc.ConfirmPaymentByID(ctx, o.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	stored, _ := f.store.GetOrderByID(ctx, o.ID)
	if stored.PaidAt == nil || !stored.PaidAt.Equal(first) {
		t.Fatalf("expected paid_at %v, got %v", first, stored.PaidAt)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.addProduct(t, "Widget", "10.00", 5, "L")
	o, _ := f.svc.PlaceOrder(ctx, "1001", "Widget", 2)

	cancelled, err := f.svc.Cancel(ctx, o.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cancelled.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	p, _ := f.store.GetProductByName(ctx, "Widget")
	if p.Stock != 5 {
		t.Fatalf("expected stock back at 5, got %d", p.Stock)
	}
	if _, err := f.svc.Cancel(ctx, o.ID); !errors.Is(err, ErrOrderClosed) {
		t.Fatalf("expected ErrOrderClosed, got %v", err)
	}

	t.Run("approve after cancel is refused", func(t *testing.T) {
		if _, err := f.svc.Approve(ctx, ApproveInput{OrderID: o.ID, AutoDeliver: true}); !errors.Is(err, ErrOrderClosed) {
			t.Fatalf("expected ErrOrderClosed, got %v", err)
		}
		stored, _ := f.store.GetOrderByID(ctx, o.ID)
		if stored.Status != models.StatusCancelled || stored.DeliveredAt != nil {
			t.Fatalf("expected the order to stay cancelled, got %s", stored.Status)
		}
		p, _ := f.store.GetProductByName(ctx, "Widget")
		if p.Stock != 5 {
			t.Fatalf("expected stock to stay at 5, got %d", p.Stock)
		}
		if len(f.notifier.dms) != 1 {
			t.Fatalf("expected only the cancellation DM, got %d", len(f.notifier.dms))
		}
	})
}

func TestProductAdmin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.AddProduct(ctx, NewProduct{Name: "Free", Price: decimal.Zero}); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := f.svc.AddProduct(ctx, NewProduct{Name: " ", Price: decimal.NewFromInt(1)}); !errors.Is(err, ErrInvalidProductName) {
		t.Fatalf("expected ErrInvalidProductName, got %v", err)
	}
	f.addProduct(t, "Widget", "10.00", 5, "")
	if _, err := f.svc.AddProduct(ctx, NewProduct{Name: "widget", Price: decimal.NewFromInt(1)}); !errors.Is(err, ErrDuplicateProduct) {
		t.Fatalf("expected ErrDuplicateProduct for a case variant, got %v", err)
	}

	p, err := f.svc.SetPrice(ctx, "widget", decimal.RequireFromString("12.499"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !p.Price.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("expected price rounded to cents, got %s", p.Price)
	}
	if _, err := f.svc.SetStock(ctx, "Widget", -1); !errors.Is(err, ErrInvalidStock) {
		t.Fatalf("expected ErrInvalidStock, got %v", err)
	}
	if _, err := f.svc.SetDeliveryLink(ctx, "Widget", "https://example.com/w"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := f.svc.SetDeliveryLink(ctx, "Gadget", "x"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	if _, err := f.svc.PlaceOrder(ctx, "1", "Widget", 1); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := f.svc.RemoveProduct(ctx, "Widget"); !errors.Is(err, ErrProductInUse) {
		t.Fatalf("expected ErrProductInUse, got %v", err)
	}
}

func TestNewConfirmationKey(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		k, err := NewConfirmationKey()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ValidKey(k) {
			t.Fatalf("invalid key %q", k)
		}
		if strings.ToUpper(k) != k {
			t.Fatalf("expected uppercase key, got %q", k)
		}
		seen[k] = true
	}
	if len(seen) < 195 {
		t.Fatalf("expected keys to be mostly distinct, got %d of 200", len(seen))
	}

	for _, bad := range []string{"", "ABC", "abcdefgh", "ABCD-123", "ABCDEFGHI"} {
		if ValidKey(bad) {
			t.Errorf("expected %q to be invalid", bad)
		}
	}
}
