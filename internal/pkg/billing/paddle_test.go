package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPaddleTestClient(t *testing.T, handler http.HandlerFunc) *PaddleClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &PaddleClient{
		APIKey:     "pdl_test_key",
		APIBaseURL: srv.URL,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestGetCustomer(t *testing.T) {
	client := newPaddleTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/ctm_1", r.URL.Path)
		assert.Equal(t, "Bearer pdl_test_key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"ctm_1","email":"Alice@Example.com","name":"Alice"}}`))
	})

	customer, err := client.GetCustomer(context.Background(), "ctm_1")
	require.NoError(t, err)
	assert.Equal(t, "ctm_1", customer.ID)
	assert.Equal(t, "alice@example.com", customer.Email)
	assert.Equal(t, "Alice", customer.Name)
}

func TestGetCustomerErrorStatus(t *testing.T) {
	client := newPaddleTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"not_found"}}`, http.StatusNotFound)
	})

	_, err := client.GetCustomer(context.Background(), "ctm_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestGetCustomerRequiresConfiguration(t *testing.T) {
	client := &PaddleClient{HTTPClient: http.DefaultClient}
	_, err := client.GetCustomer(context.Background(), "ctm_1")
	assert.Error(t, err)

	client.APIKey = "pdl_test_key"
	_, err = client.GetCustomer(context.Background(), "")
	assert.Error(t, err)
}
