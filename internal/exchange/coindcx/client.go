// Package coindcx implements the exchange gateway against the CoinDCX REST
// API: HMAC-signed JSON bodies for the private order endpoints and the
// unauthenticated public orderbook.
package coindcx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"follow-trading/internal/config"
	"follow-trading/internal/core"
	"follow-trading/internal/exchange"
)

const (
	pathOrderCreate = "/exchange/v1/orders/create"
	pathOrderCancel = "/exchange/v1/orders/cancel"
	pathOrderStatus = "/exchange/v1/orders/status"
)

type Client struct {
	apiKey    string
	apiSecret string
	baseURL   string
	publicURL string
	wsBaseURL string
	quote     string

	httpClient *http.Client
	limiter    *rate.Limiter
}

type Options struct {
	APIKey         string
	APISecret      string
	RestBaseURL    string
	PublicBaseURL  string
	WSBaseURL      string
	QuoteCurrency  string
	HTTPTimeoutSec int64
	RequestsPerSec float64
	RequestsBurst  int
}

func NewClient(cfg config.ExchangeConfig) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("api_key/api_secret required")
	}
	return NewClientWithOptions(Options{
		APIKey:         cfg.APIKey,
		APISecret:      cfg.APISecret,
		RestBaseURL:    cfg.RestBaseURL,
		PublicBaseURL:  cfg.PublicBaseURL,
		WSBaseURL:      cfg.WSBaseURL,
		QuoteCurrency:  cfg.QuoteCurrency,
		HTTPTimeoutSec: cfg.HTTPTimeoutSec,
		RequestsPerSec: cfg.RequestsPerSec,
		RequestsBurst:  cfg.RequestsBurst,
	}), nil
}

func NewClientWithOptions(opts Options) *Client {
	timeout := 15 * time.Second
	if opts.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opts.HTTPTimeoutSec) * time.Second
	}
	perSec := opts.RequestsPerSec
	if perSec <= 0 {
		perSec = 8
	}
	burst := opts.RequestsBurst
	if burst <= 0 {
		burst = 4
	}
	quote := strings.ToUpper(strings.TrimSpace(opts.QuoteCurrency))
	if quote == "" {
		quote = "INR"
	}
	return &Client{
		apiKey:     opts.APIKey,
		apiSecret:  opts.APISecret,
		baseURL:    strings.TrimRight(opts.RestBaseURL, "/"),
		publicURL:  strings.TrimRight(opts.PublicBaseURL, "/"),
		wsBaseURL:  strings.TrimRight(opts.WSBaseURL, "/"),
		quote:      quote,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

func (c *Client) Name() string { return "coindcx" }

func (c *Client) PlaceLimitOrder(ctx context.Context, side core.Side, market string, price, qty decimal.Decimal) (core.Order, error) {
	if market == "" {
		return core.Order{}, fmt.Errorf("%w: market required", core.ErrInvalidParameters)
	}
	if price.Sign() <= 0 || qty.Sign() <= 0 {
		return core.Order{}, fmt.Errorf("%w: price and qty must be > 0", core.ErrInvalidParameters)
	}
	req := createOrderRequest{
		Side:          strings.ToLower(string(side)),
		OrderType:     "limit",
		Market:        market,
		PricePerUnit:  price.String(),
		TotalQuantity: qty.String(),
		Timestamp:     time.Now().UnixMilli(),
	}
	body, err := c.doSigned(ctx, pathOrderCreate, req)
	if err != nil {
		return core.Order{}, err
	}
	var resp createOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Order{}, fmt.Errorf("decode create response: %w", err)
	}
	raw := resp.orderResponse
	if raw.ID == "" && len(resp.Orders) > 0 {
		raw = resp.Orders[0]
	}
	if raw.ID == "" {
		return core.Order{}, errors.New("create response carried no order id")
	}
	return orderFromResponse(raw), nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("%w: order id required", core.ErrInvalidParameters)
	}
	_, err := c.doSigned(ctx, pathOrderCancel, orderRef{ID: orderID, Timestamp: time.Now().UnixMilli()})
	return err
}

func (c *Client) QueryOrder(ctx context.Context, orderID string) (exchange.OrderQuery, error) {
	if orderID == "" {
		return exchange.OrderQuery{}, fmt.Errorf("%w: order id required", core.ErrInvalidParameters)
	}
	body, err := c.doSigned(ctx, pathOrderStatus, orderRef{ID: orderID, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return exchange.OrderQuery{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return exchange.OrderQuery{}, fmt.Errorf("decode status response: %w", err)
	}
	if resp.ID == "" {
		return exchange.OrderQuery{}, fmt.Errorf("%w: %s", core.ErrOrderNotFound, orderID)
	}
	order := orderFromResponse(resp)
	total, _ := decimal.NewFromString(resp.TotalQuantity)
	remaining, _ := decimal.NewFromString(resp.RemainingQuantity)
	executed := total.Sub(remaining)
	if executed.Sign() < 0 {
		executed = decimal.Zero
	}
	avg, _ := decimal.NewFromString(resp.AvgPrice)
	return exchange.OrderQuery{Order: order, ExecutedQty: executed, AvgPrice: avg}, nil
}

// Orderbook fetches the public book for a market like "BTCINR". CoinDCX
// addresses the public endpoint by pair ("B-BTC_INR") and encodes each side
// as an unsorted price -> quantity map.
func (c *Client) Orderbook(ctx context.Context, market string) (core.Book, error) {
	pair, err := c.pairFor(market)
	if err != nil {
		return core.Book{}, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return core.Book{}, err
	}
	url := c.publicURL + "/market_data/orderbook?pair=" + pair
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.Book{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Book{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.Book{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.Book{}, classifyAPIError(apiErrorFromResponse(resp.StatusCode, body))
	}
	var parsed orderbookResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return core.Book{}, fmt.Errorf("decode orderbook: %w", err)
	}
	return core.Book{
		Market: market,
		Bids:   levelsFromMap(parsed.Bids, true),
		Asks:   levelsFromMap(parsed.Asks, false),
		At:     time.Now().UTC(),
	}, nil
}

// pairFor maps "BTCINR" onto the public pair notation "B-BTC_INR".
func (c *Client) pairFor(market string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(market))
	base, ok := strings.CutSuffix(m, c.quote)
	if !ok || base == "" {
		return "", fmt.Errorf("%w: market %q does not end in quote currency %s", core.ErrInvalidParameters, market, c.quote)
	}
	return "B-" + base + "_" + c.quote, nil
}

func (c *Client) doSigned(ctx context.Context, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-AUTH-APIKEY", c.apiKey)
	req.Header.Set("X-AUTH-SIGNATURE", sign(c.apiSecret, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyAPIError(apiErrorFromResponse(resp.StatusCode, respBody))
	}
	return respBody, nil
}

func apiErrorFromResponse(status int, body []byte) APIError {
	apiErr := APIError{HTTPStatus: status}
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func orderFromResponse(resp orderResponse) core.Order {
	price, _ := decimal.NewFromString(resp.PricePerUnit)
	qty, _ := decimal.NewFromString(resp.TotalQuantity)
	order := core.Order{
		ID:       resp.ID,
		ClientID: resp.ClientOrderID,
		Market:   resp.Market,
		Side:     core.Side(strings.ToUpper(resp.Side)),
		Price:    price,
		Qty:      qty,
		Status:   mapStatus(resp.Status),
	}
	if resp.CreatedAt > 0 {
		order.CreatedAt = time.UnixMilli(resp.CreatedAt)
	}
	return order
}

func mapStatus(s string) core.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "init", "open":
		return core.OrderOpen
	case "partially_filled", "partial_entry":
		return core.OrderPartiallyFilled
	case "filled":
		return core.OrderFilled
	case "cancelled", "canceled", "partially_cancelled":
		return core.OrderCanceled
	case "rejected":
		return core.OrderRejected
	}
	return core.OrderStatus(strings.ToUpper(s))
}

func levelsFromMap(side map[string]string, descending bool) []core.Level {
	levels := make([]core.Level, 0, len(side))
	for priceStr, qtyStr := range side {
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(qtyStr)
		if err != nil {
			continue
		}
		levels = append(levels, core.Level{Price: price, Qty: qty})
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.Cmp(levels[j].Price) > 0
		}
		return levels[i].Price.Cmp(levels[j].Price) < 0
	})
	return levels
}
