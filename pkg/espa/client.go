// Package espa talks to the ESPA on-demand processing API: it places
// product orders and resolves finished orders into download URLs.
package espa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sdejongh/scival/pkg/logging"
)

const (
	orderPath      = "/api/v1/order"
	itemStatusPath = "/api/v1/item-status/"

	// StatusComplete is the item status of a downloadable product
	StatusComplete = "complete"
)

// Client is an authenticated ESPA API client
type Client struct {
	Host     string
	Username string
	Password string
	HTTP     *http.Client
	Logger   logging.Logger
}

// NewClient creates a client for host with basic-auth credentials
func NewClient(host, username, password string, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Client{
		Host:     strings.TrimRight(host, "/"),
		Username: username,
		Password: password,
		HTTP:     &http.Client{Timeout: 5 * time.Minute},
		Logger:   logger,
	}
}

// OrderResponse is the reply to a placed order
type OrderResponse struct {
	OrderID  string   `json:"orderid,omitempty"`
	Status   string   `json:"status,omitempty"`
	Messages Messages `json:"messages,omitempty"`
}

// Messages carries the API's warnings and errors
type Messages struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Item is one product of an order
type Item struct {
	Name           string `json:"name"`
	Status         string `json:"status"`
	ProductURL     string `json:"product_dload_url"`
	ChecksumURL    string `json:"cksum_download_url"`
	Note           string `json:"note,omitempty"`
	CompletionDate string `json:"completion_date,omitempty"`
}

// Complete reports whether the item can be downloaded
func (i Item) Complete() bool {
	return i.Status == StatusComplete && i.ProductURL != ""
}

// APIError is a non-2xx reply
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ESPA API returned %d: %s", e.StatusCode, e.Body)
}

// PlaceOrder submits one order specification
func (c *Client) PlaceOrder(ctx context.Context, order Order) (*OrderResponse, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}

	var resp OrderResponse
	if err := c.do(ctx, http.MethodPost, orderPath, bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}

	c.Logger.Info(ctx, "Order placed", logging.Fields{"order_id": resp.OrderID, "status": resp.Status})
	for _, w := range resp.Messages.Warnings {
		c.Logger.Warn(ctx, "Order warning", logging.Fields{"order_id": resp.OrderID, "message": w})
	}
	return &resp, nil
}

// ItemStatus lists the products of an order
func (c *Client) ItemStatus(ctx context.Context, orderID string) ([]Item, error) {
	var resp map[string][]Item
	if err := c.do(ctx, http.MethodGet, itemStatusPath+url.PathEscape(orderID), nil, &resp); err != nil {
		return nil, err
	}

	items, ok := resp[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found in status reply", orderID)
	}
	return items, nil
}

// DownloadURLs resolves orders into the product and checksum URLs of their
// completed items. Incomplete items are logged and skipped.
func (c *Client) DownloadURLs(ctx context.Context, orderIDs []string) ([]Item, error) {
	var ready []Item
	for _, id := range orderIDs {
		items, err := c.ItemStatus(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", id, err)
		}
		for _, item := range items {
			if !item.Complete() {
				c.Logger.Warn(ctx, "Item not ready for download", logging.Fields{
					"order_id": id,
					"item":     item.Name,
					"status":   item.Status,
				})
				continue
			}
			ready = append(ready, item)
		}
	}
	return ready, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.Host+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.Username, c.Password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c.Logger.Debug(ctx, "ESPA request", logging.Fields{"method": method, "url": req.URL.String()})
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ESPA request failed (is the service down for maintenance?): %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read ESPA reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode ESPA reply: %w", err)
	}
	return nil
}
