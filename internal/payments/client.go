package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client calls the payments service to initiate payment creation.
// The orders side never sees payment internals, only the issued
// payment id.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type createPaymentRequest struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Amount  int64  `json:"amount"`
}

type createPaymentResponse struct {
	PaymentID string `json:"payment_id"`
}

func (c *Client) CreatePayment(ctx context.Context, orderID, userID string, amount int64) (string, error) {
	data, err := json.Marshal(createPaymentRequest{
		OrderID: orderID,
		UserID:  userID,
		Amount:  amount,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create payment for order %s: %w", orderID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("payments service returned status %d for order %s", resp.StatusCode, orderID)
	}

	var body createPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode payment response: %w", err)
	}

	if body.PaymentID == "" {
		return "", fmt.Errorf("payments service returned no payment id for order %s", orderID)
	}

	return body.PaymentID, nil
}
