package coindcx

type createOrderRequest struct {
	Side          string `json:"side"`
	OrderType     string `json:"order_type"`
	Market        string `json:"market"`
	PricePerUnit  string `json:"price_per_unit"`
	TotalQuantity string `json:"total_quantity"`
	Timestamp     int64  `json:"timestamp"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type orderRef struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

type orderResponse struct {
	ID                string `json:"id"`
	ClientOrderID     string `json:"client_order_id"`
	Market            string `json:"market"`
	Side              string `json:"side"`
	Status            string `json:"status"`
	PricePerUnit      string `json:"price_per_unit"`
	TotalQuantity     string `json:"total_quantity"`
	RemainingQuantity string `json:"remaining_quantity"`
	AvgPrice          string `json:"avg_price"`
	CreatedAt         int64  `json:"created_at"`
}

type createOrderResponse struct {
	Orders []orderResponse `json:"orders"`
	// Some endpoints respond with the order inlined instead of a list.
	orderResponse
}

type apiErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// The public orderbook encodes each side as a price -> quantity map of
// strings, not a sorted list.
type orderbookResponse struct {
	Bids map[string]string `json:"bids"`
	Asks map[string]string `json:"asks"`
}
