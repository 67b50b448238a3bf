package espa

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sdejongh/scival/pkg/logging"
)

// DefaultOrderKey names the order set used when none is requested
const DefaultOrderKey = "original"

// Order is one ESPA order body. Sensor sections such as "olitirs8" or
// "etm7" are kept as free-form maps and passed through unchanged.
type Order map[string]any

// OrderSpecs maps an order set name to its orders
type OrderSpecs map[string][]Order

// LoadOrderSpecs reads order sets from a YAML file
func LoadOrderSpecs(path string) (OrderSpecs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read order specs: %w", err)
	}

	var specs OrderSpecs
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse order specs: %w", err)
	}
	return specs, nil
}

//go:embed default_orders.yaml
var defaultOrders []byte

// DefaultOrderSpecs returns the built-in order sets
func DefaultOrderSpecs() (OrderSpecs, error) {
	var specs OrderSpecs
	if err := yaml.Unmarshal(defaultOrders, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse built-in order specs: %w", err)
	}
	return specs, nil
}

// Select returns the orders under key, DefaultOrderKey when key is empty
func (s OrderSpecs) Select(key string) ([]Order, error) {
	if key == "" {
		key = DefaultOrderKey
	}
	orders, ok := s[key]
	if !ok {
		keys := make([]string, 0, len(s))
		for k := range s {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("order key %q not found (available: %s)", key, strings.Join(keys, ", "))
	}
	return orders, nil
}

// PlaceOrders submits every order in turn. An order that fails is logged
// and the remaining orders are still placed; the first error is returned
// along with the replies that were received.
func (c *Client) PlaceOrders(ctx context.Context, orders []Order) ([]*OrderResponse, error) {
	var (
		responses []*OrderResponse
		firstErr  error
	)
	for i, order := range orders {
		if err := ctx.Err(); err != nil {
			return responses, err
		}
		c.Logger.Info(ctx, "Requesting order", logging.Fields{"index": i + 1, "total": len(orders)})

		resp, err := c.PlaceOrder(ctx, order)
		if err != nil {
			c.Logger.Error(ctx, "Order failed", err, logging.Fields{"index": i + 1})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		responses = append(responses, resp)
	}
	return responses, firstErr
}

// OrderLogName returns the order log file name for t
func OrderLogName(t time.Time) string {
	return fmt.Sprintf("order_%s.txt", t.Format("20060102-150405"))
}

// WriteOrderLog appends one JSON line per reply to order_<timestamp>.txt
// in dir and returns the file path
func WriteOrderLog(dir string, now time.Time, responses []*OrderResponse) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create order directory: %w", err)
	}

	path := filepath.Join(dir, OrderLogName(now))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open order log: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, resp := range responses {
		line, err := json.Marshal(resp)
		if err != nil {
			f.Close()
			return "", fmt.Errorf("failed to encode order reply: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write order log: %w", err)
	}
	return path, f.Close()
}

// ReadOrderIDs reads order IDs back from an order log. Lines may hold a
// JSON reply or a bare order ID; blank lines and replies without an ID
// are ignored.
func ReadOrderIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open order log: %w", err)
	}
	defer f.Close()

	var ids []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		id := line
		if strings.HasPrefix(line, "{") {
			var resp OrderResponse
			if err := json.Unmarshal([]byte(line), &resp); err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			id = resp.OrderID
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order log: %w", err)
	}
	return ids, nil
}
