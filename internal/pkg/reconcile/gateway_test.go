package reconcile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolpay/schoolpay/app/models"
)

func TestHTTPGatewayClientFetchStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collect-request/6808bc4888e4e3c84a", r.URL.Path)
		assert.Equal(t, "SCH_77", r.URL.Query().Get("school_id"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "SUCCESS", "amount": 1800, "payment_mode": "upi"}`))
	}))
	defer server.Close()

	client := &HTTPGatewayClient{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		HTTPClient: server.Client(),
	}

	order := testOrder()
	require.NoError(t, order.MergeMetadata(map[string]string{
		models.MetaCollectRequestID: "6808bc4888e4e3c84a",
	}))

	event, err := client.FetchStatus(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "6808bc4888e4e3c84a", event.ExternalRef)
	assert.Equal(t, "SUCCESS", event.RawStatus)
	assert.Equal(t, 1800.0, event.OrderAmount)
	assert.Equal(t, "upi", event.PaymentMode)
	assert.Equal(t, "edviron", event.Gateway)
}

func TestHTTPGatewayClientFetchStatusErrors(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream broken", http.StatusBadGateway)
		}))
		defer server.Close()

		client := &HTTPGatewayClient{BaseURL: server.URL, HTTPClient: server.Client()}
		_, err := client.FetchStatus(context.Background(), testOrder())
		assert.Error(t, err)
	})

	t.Run("missing status field", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"amount": 12}`))
		}))
		defer server.Close()

		client := &HTTPGatewayClient{BaseURL: server.URL, HTTPClient: server.Client()}
		_, err := client.FetchStatus(context.Background(), testOrder())
		assert.Error(t, err)
	})

	t.Run("context timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		client := &HTTPGatewayClient{BaseURL: server.URL, HTTPClient: server.Client()}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := client.FetchStatus(ctx, testOrder())
		assert.Error(t, err)
	})
}
