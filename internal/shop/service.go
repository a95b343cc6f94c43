// Package shop implements the order lifecycle: placing orders, admin payment
// confirmation, approval and delivery, plus the product catalogue admins edit.
package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alextreichler/shopbot/internal/clock"
	"github.com/alextreichler/shopbot/internal/metrics"
	"github.com/alextreichler/shopbot/internal/models"
	"github.com/alextreichler/shopbot/internal/notify"
	"github.com/alextreichler/shopbot/internal/pricefeed"
	"github.com/alextreichler/shopbot/internal/store"
	"github.com/shopspring/decimal"
)

const maxKeyAttempts = 5

// Store is the persistence the service needs. *store.Store implements it.
type Store interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductByName(ctx context.Context, name string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error
	UpdateProductStock(ctx context.Context, id int64, stock int) error
	UpdateProductDescription(ctx context.Context, id int64, description string) error
	UpdateDeliveryLink(ctx context.Context, id int64, link string) error
	DecrementStock(ctx context.Context, id int64, qty int) error
	IncrementStock(ctx context.Context, id int64, qty int) error
	DeleteProduct(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByConfirmationKey(ctx context.Context, key string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string, limit int) ([]models.Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]models.Order, error)
	CountOrders(ctx context.Context) (int, error)
	ListUnpaidOrders(ctx context.Context) ([]models.Order, error)
	MarkPaymentConfirmed(ctx context.Context, id int64, at time.Time) error
	MarkDelivered(ctx context.Context, id int64, at time.Time) error
	UpdateOrderStatus(ctx context.Context, id int64, status string) error
}

// Deps carries everything the service talks to.
type Deps struct {
	Store    Store
	Quoter   pricefeed.Quoter
	Notifier notify.Notifier
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// AdminChannelID receives buyer payment claims. Empty disables the notice.
	AdminChannelID string
	// NewKey overrides confirmation key generation.
	NewKey func() (string, error)
	// Prefix is the chat command prefix quoted in admin notices, "s!" by default.
	Prefix string
}

type Service struct {
	store    Store
	quoter   pricefeed.Quoter
	notifier notify.Notifier
	clock    clock.Clock
	metrics  *metrics.Metrics
	log      *slog.Logger

	adminChannelID string
	newKey         func() (string, error)
	prefix         string
}

func NewService(d Deps) *Service {
	s := &Service{
		store:          d.Store,
		quoter:         d.Quoter,
		notifier:       d.Notifier,
		clock:          d.Clock,
		metrics:        d.Metrics,
		log:            d.Logger,
		adminChannelID: d.AdminChannelID,
		newKey:         d.NewKey,
		prefix:         d.Prefix,
	}
	if s.clock == nil {
		s.clock = clock.NewSystem()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "shop")
	if s.prefix == "" {
		s.prefix = "s!"
	}
	if s.newKey == nil {
		s.newKey = NewConfirmationKey
	}
	return s
}

// NewOrder is a purchase whose product and stock were already validated.
type NewOrder struct {
	UserID   string
	Product  *models.Product
	Quantity int
}

// CreateOrder prices the purchase, generates a confirmation key and stores a
// pending, unconfirmed order.
func (s *Service) CreateOrder(ctx context.Context, in NewOrder) (*models.Order, error) {
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if in.Product == nil {
		return nil, ErrProductNotFound
	}

	total := in.Product.Price.Mul(decimal.NewFromInt(int64(in.Quantity))).Round(2)
	amount, err := s.quoter.Quote(ctx, total)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}

	o := &models.Order{
		UserID:           in.UserID,
		ProductID:        in.Product.ID,
		ProductName:      in.Product.Name,
		Quantity:         in.Quantity,
		TotalPrice:       total,
		CryptoAmount:     amount,
		Status:           models.StatusPending,
		PaymentConfirmed: false,
		CreatedAt:        s.clock.Now(),
	}

	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		key, err := s.newKey()
		if err != nil {
			return nil, err
		}
		o.ConfirmationKey = key

		err = s.store.CreateOrder(ctx, o)
		if errors.Is(err, store.ErrDuplicateConfirmationKey) {
			s.log.Warn("Confirmation key collision, regenerating", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}

		s.metrics.OrdersCreated.Inc()
		s.log.Info("Order created",
			"order_id", o.ID,
			"user_id", o.UserID,
			"product", o.ProductName,
			"quantity", o.Quantity,
			"total_usd", o.TotalPrice.StringFixed(2),
			"ltc", o.CryptoAmount.String(),
		)
		return o, nil
	}
	return nil, ErrKeyExhausted
}

// PlaceOrder is the buyer-facing purchase: it resolves the product, takes stock
// and creates the order. Stock is returned if the order cannot be created.
func (s *Service) PlaceOrder(ctx context.Context, userID, productName string, quantity int) (*models.Order, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.productByName(ctx, productName)
	if err != nil {
		return nil, err
	}
	if p.Stock < quantity {
		return nil, ErrInsufficientStock
	}

	if err := s.store.DecrementStock(ctx, p.ID, quantity); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	o, err := s.CreateOrder(ctx, NewOrder{UserID: userID, Product: p, Quantity: quantity})
	if err != nil {
		if rerr := s.store.IncrementStock(ctx, p.ID, quantity); rerr != nil {
			s.log.Error("Failed to return stock after failed order", "product_id", p.ID, "quantity", quantity, "error", rerr)
		}
		return nil, err
	}
	return o, nil
}

// ConfirmPayment records the admin's attestation that the order identified by key
// was paid. The order status is not touched; Approve moves it on. Confirming twice
// keeps the first paid_at.
func (s *Service) ConfirmPayment(ctx context.Context, key string) (*models.Order, error) {
	o, err := s.orderByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, o)
}

// ConfirmPaymentByID is ConfirmPayment addressed by order id.
func (s *Service) ConfirmPaymentByID(ctx context.Context, id int64) (*models.Order, error) {
	o, err := s.order(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, o)
}

func (s *Service) confirm(ctx context.Context, o *models.Order) (*models.Order, error) {
	if o.PaymentConfirmed {
		return o, nil
	}

	now := s.clock.Now()
	if err := s.store.MarkPaymentConfirmed(ctx, o.ID, now); err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}
	o.PaymentConfirmed = true
	o.PaidAt = &now

	s.metrics.PaymentsConfirmed.Inc()
	s.log.Info("Payment confirmed", "order_id", o.ID, "user_id", o.UserID)

	msg := notify.Message{
		Title:       "✅ Payment Confirmed",
		Description: fmt.Sprintf("We received your payment for order #%d. It will be delivered shortly.", o.ID),
		Color:       notify.ColorSuccess,
	}
	s.tell(ctx, o, msg)
	return o, nil
}

// ClaimPayment is the buyer saying they sent the funds. It checks the key belongs
// to userID and pings the admin channel; nothing is written.
func (s *Service) ClaimPayment(ctx context.Context, userID, key string) (*models.Order, error) {
	o, err := s.orderByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	if o.PaymentConfirmed {
		return o, ErrAlreadyConfirmed
	}
	if o.Status != models.StatusPending {
		return o, ErrOrderClosed
	}

	s.log.Info("Buyer reported payment", "order_id", o.ID, "user_id", userID)
	if s.adminChannelID == "" {
		return o, nil
	}

	msg := notify.Message{
		Title:       "💰 Payment Reported",
		Description: fmt.Sprintf("<@%s> reports paying for order #%d.", userID, o.ID),
		Color:       notify.ColorAdmin,
	}.
		AddField("Product", fmt.Sprintf("%s × %d", o.ProductName, o.Quantity), true).
		AddField("Amount", fmt.Sprintf("$%s / %s LTC", o.TotalPrice.StringFixed(2), o.CryptoAmount.String()), true).
		AddField("Next step", fmt.Sprintf("`%sverify %s` once the funds arrive", s.prefix, o.ConfirmationKey), false)
	if err := s.notifier.ChannelMessage(ctx, s.adminChannelID, msg); err != nil {
		s.log.Warn("Failed to notify admin channel", "order_id", o.ID, "error", err)
	}
	return o, nil
}

type ApproveInput struct {
	OrderID     int64
	AutoDeliver bool
	// Message is sent to the buyer, after the link when AutoDeliver is set.
	Message string
}

type ApproveResult struct {
	Order *models.Order
	// Notified is false when the buyer could not be messaged; NotifyErr says why.
	Notified  bool
	NotifyErr error
}

// Approve marks the order delivered and messages the buyer. With AutoDeliver the
// product's delivery link is sent; a product without one fails with
// ErrDeliveryContentMissing and the order is left untouched. Cancelled orders
// fail with ErrOrderClosed; delivered ones may be approved again to re-send.
func (s *Service) Approve(ctx context.Context, in ApproveInput) (*ApproveResult, error) {
	o, err := s.order(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == models.StatusCancelled {
		return nil, ErrOrderClosed
	}

	var link string
	if in.AutoDeliver {
		p, err := s.store.GetProductByID(ctx, o.ProductID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if p == nil || !p.HasDeliveryLink() {
			return nil, ErrDeliveryContentMissing
		}
		link = p.DeliveryLink
	}

	now := s.clock.Now()
	if err := s.store.MarkDelivered(ctx, o.ID, now); err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	o.Status = models.StatusDelivered
	o.DeliveredAt = &now

	mode := "manual"
	if in.AutoDeliver {
		mode = "auto"
	}
	s.metrics.Deliveries.WithLabelValues(mode).Inc()
	s.log.Info("Order delivered", "order_id", o.ID, "user_id", o.UserID, "mode", mode)

	res := &ApproveResult{Order: o}
	if err := s.notifier.DirectMessage(ctx, o.UserID, deliveryMessage(o, link, in.Message)); err != nil {
		s.log.Warn("Failed to send delivery message", "order_id", o.ID, "user_id", o.UserID, "error", err)
		res.NotifyErr = err
		return res, nil
	}
	res.Notified = true
	return res, nil
}

func deliveryMessage(o *models.Order, link, note string) notify.Message {
	msg := notify.Message{
		Title:       "📦 Order Delivered",
		Description: fmt.Sprintf("Your order #%d for **%s** has been delivered. Thank you for shopping with us!", o.ID, o.ProductName),
		Color:       notify.ColorSuccess,
	}
	if link != "" {
		msg = msg.AddField("Download", link, false)
	}
	if note != "" {
		msg = msg.AddField("Message from the shop", note, false)
	}
	return msg
}

// Cancel marks an undelivered order cancelled and puts its stock back.
func (s *Service) Cancel(ctx context.Context, id int64) (*models.Order, error) {
	o, err := s.order(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == models.StatusDelivered || o.Status == models.StatusCancelled {
		return o, ErrOrderClosed
	}

	if err := s.store.UpdateOrderStatus(ctx, o.ID, models.StatusCancelled); err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	o.Status = models.StatusCancelled

	if err := s.store.IncrementStock(ctx, o.ProductID, o.Quantity); err != nil {
		s.log.Warn("Failed to restock cancelled order", "order_id", o.ID, "product_id", o.ProductID, "error", err)
	}
	s.log.Info("Order cancelled", "order_id", o.ID, "user_id", o.UserID)

	s.tell(ctx, o, notify.Message{
		Title:       "🚫 Order Cancelled",
		Description: fmt.Sprintf("Your order #%d has been cancelled. Contact staff if this is unexpected.", o.ID),
		Color:       notify.ColorWarning,
	})
	return o, nil
}

// Order returns a single order.
func (s *Service) Order(ctx context.Context, id int64) (*models.Order, error) {
	return s.order(ctx, id)
}

// Orders returns the buyer's most recent orders.
func (s *Service) Orders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.store.ListOrdersByUser(ctx, userID, 10)
}

// Pending returns the unpaid orders, the same set the reminder loop scans.
func (s *Service) Pending(ctx context.Context) ([]models.Order, error) {
	return s.store.ListUnpaidOrders(ctx)
}

// RecentOrders pages through every order, newest first, and returns the total count.
func (s *Service) RecentOrders(ctx context.Context, limit, offset int) ([]models.Order, int, error) {
	orders, err := s.store.ListOrders(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountOrders(ctx)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *Service) order(ctx context.Context, id int64) (*models.Order, error) {
	o, err := s.store.GetOrderByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func (s *Service) orderByKey(ctx context.Context, key string) (*models.Order, error) {
	key = NormalizeKey(key)
	if !ValidKey(key) {
		return nil, ErrOrderNotFound
	}
	o, err := s.store.GetOrderByConfirmationKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// tell messages the buyer and only logs a failure.
func (s *Service) tell(ctx context.Context, o *models.Order, msg notify.Message) {
	if err := s.notifier.DirectMessage(ctx, o.UserID, msg); err != nil {
		s.log.Warn("Failed to message buyer", "order_id", o.ID, "user_id", o.UserID, "error", err)
	}
}
