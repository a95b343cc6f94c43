package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// CoinGecko fetches the LTC/USD rate from the public simple-price endpoint and
// caches it for TTL.
type CoinGecko struct {
	BaseURL string
	Client  *http.Client
	TTL     time.Duration
	Log     *slog.Logger

	mu        sync.Mutex
	rate      decimal.Decimal
	fetchedAt time.Time
	now       func() time.Time
}

func NewCoinGecko(baseURL string, timeout, ttl time.Duration) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGecko{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
		TTL:     ttl,
		Log:     slog.Default().With("component", "pricefeed"),
		now:     time.Now,
	}
}

func (c *CoinGecko) Quote(ctx context.Context, usd decimal.Decimal) (decimal.Decimal, error) {
	rate, err := c.Rate(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return Convert(usd, rate)
}

// Rate returns the cached LTC/USD rate, refreshing it when stale. A failed refresh
// falls back to a stale rate if one exists.
func (c *CoinGecko) Rate(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.TTL {
		return c.rate, nil
	}

	rate, err := c.fetch(ctx)
	if err != nil {
		if !c.fetchedAt.IsZero() {
			c.Log.Warn("Price refresh failed, using stale rate", "error", err, "age", c.now().Sub(c.fetchedAt))
			return c.rate, nil
		}
		return decimal.Zero, err
	}

	c.rate = rate
	c.fetchedAt = c.now()
	c.Log.Debug("Refreshed LTC price", "usd", rate.String())
	return rate, nil
}

type simplePriceResponse map[string]map[string]json.Number

func (c *CoinGecko) fetch(ctx context.Context) (decimal.Decimal, error) {
	url := c.BaseURL + "/simple/price?ids=litecoin&vs_currencies=usd"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price request: unexpected status %d", resp.StatusCode)
	}

	var body simplePriceResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode price response: %w", err)
	}

	raw, ok := body["litecoin"]["usd"]
	if !ok {
		return decimal.Zero, ErrNoPrice
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", raw, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, ErrNoPrice
	}
	return rate, nil
}
