package espa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/scival/pkg/logging"
)

const specsYAML = `
original:
  - olitirs8_collection:
      inputs: [LC08_L1TP_029030_20161008_20170220_01_T1]
      products: [sr, toa]
    format: gtiff
  - etm7_collection:
      inputs: [LE07_L1TP_029030_20161016_20161111_01_T1]
      products: [sr]
    format: envi
bt_only:
  - olitirs8_collection:
      inputs: [LC08_L1TP_029030_20161008_20170220_01_T1]
      products: [bt]
    format: gtiff
`

func newServer(t *testing.T) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var received []map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/order", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"messages": {"errors": ["bad credentials"]}}`))
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received = append(received, body)

		json.NewEncoder(w).Encode(map[string]any{
			"orderid": "espa-alice-" + string(rune('0'+len(received))),
			"status":  "ordered",
		})
	})
	mux.HandleFunc("/api/v1/item-status/espa-alice-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"espa-alice-1": [
			{"name": "LC08_sr", "status": "complete", "product_dload_url": "http://dl/LC08.tar.gz", "cksum_download_url": "http://dl/LC08.md5"},
			{"name": "LE07_sr", "status": "processing", "product_dload_url": ""}
		]}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &received
}

func writeSpecs(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(specsYAML), 0644))
	return path
}

func TestLoadOrderSpecs(t *testing.T) {
	specs, err := LoadOrderSpecs(writeSpecs(t))
	require.NoError(t, err)

	orders, err := specs.Select("")
	require.NoError(t, err)
	assert.Len(t, orders, 2)
	assert.Equal(t, "gtiff", orders[0]["format"])

	orders, err = specs.Select("bt_only")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	_, err = specs.Select("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bt_only, original")

	_, err = LoadOrderSpecs(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultOrderSpecs(t *testing.T) {
	specs, err := DefaultOrderSpecs()
	require.NoError(t, err)

	orders, err := specs.Select("")
	require.NoError(t, err)
	require.NotEmpty(t, orders)
	for _, o := range orders {
		assert.Equal(t, "gtiff", o["format"])
	}

	_, err = specs.Select("indices")
	assert.NoError(t, err)
}

func TestPlaceOrders(t *testing.T) {
	srv, received := newServer(t)
	specs, err := LoadOrderSpecs(writeSpecs(t))
	require.NoError(t, err)
	orders, _ := specs.Select("")

	c := NewClient(srv.URL+"/", "alice", "secret", logging.NewNullLogger())
	responses, err := c.PlaceOrders(context.Background(), orders)
	require.NoError(t, err)

	require.Len(t, responses, 2)
	assert.Equal(t, "espa-alice-1", responses[0].OrderID)
	assert.Equal(t, "ordered", responses[1].Status)

	require.Len(t, *received, 2)
	section := (*received)[0]["olitirs8_collection"].(map[string]any)
	assert.Equal(t, []any{"sr", "toa"}, section["products"])

	t.Run("BadCredentials", func(t *testing.T) {
		bad := NewClient(srv.URL, "alice", "wrong", nil)
		responses, err := bad.PlaceOrders(context.Background(), orders)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Empty(t, responses)
	})
}

func TestDownloadURLs(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(srv.URL, "alice", "secret", nil)

	items, err := c.DownloadURLs(context.Background(), []string{"espa-alice-1"})
	require.NoError(t, err)
	require.Len(t, items, 1, "incomplete items are skipped")
	assert.Equal(t, "http://dl/LC08.tar.gz", items[0].ProductURL)
	assert.Equal(t, "http://dl/LC08.md5", items[0].ChecksumURL)

	_, err = c.DownloadURLs(context.Background(), []string{"unknown"})
	assert.Error(t, err)
}

func TestOrderLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "orders")
	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	path, err := WriteOrderLog(dir, now, []*OrderResponse{
		{OrderID: "espa-alice-1", Status: "ordered"},
		{OrderID: "espa-alice-2", Status: "ordered"},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "order_20261016-093000.txt"), path)

	// a second batch appends
	_, err = WriteOrderLog(dir, now, []*OrderResponse{{OrderID: "espa-alice-1"}, {Status: "error"}})
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	f.WriteString("\nespa-alice-3\n")
	f.Close()

	ids, err := ReadOrderIDs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"espa-alice-1", "espa-alice-2", "espa-alice-3"}, ids)

	t.Run("Malformed", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.txt")
		require.NoError(t, os.WriteFile(bad, []byte("{not json\n"), 0644))
		_, err := ReadOrderIDs(bad)
		assert.Error(t, err)
	})
}
