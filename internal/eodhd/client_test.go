package eodhd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient("test_token",
		WithBaseURL(server.URL),
		WithRateLimit(100),
	)
	return client, server
}

func TestGetEOD(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string

	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"api_token": r.URL.Query().Get("api_token"),
			"fmt":       r.URL.Query().Get("fmt"),
			"from":      r.URL.Query().Get("from"),
			"to":        r.URL.Query().Get("to"),
			"period":    r.URL.Query().Get("period"),
		}
		w.Write([]byte(`[
			{"date":"2026-08-21","open":230,"high":235,"low":229,"close":234,"adjusted_close":234,"volume":1000000},
			{"date":"2026-08-24","open":234,"high":238,"low":233,"close":237.5,"adjusted_close":237.5,"volume":1200000}
		]`))
	})
	defer server.Close()

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	result, err := client.GetEOD(context.Background(), "AAPL.US", WithDateRange(from, to))
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, "/eod/AAPL.US", gotPath)
	assert.Equal(t, "test_token", gotQuery["api_token"])
	assert.Equal(t, "json", gotQuery["fmt"])
	assert.Equal(t, "2026-08-01", gotQuery["from"])
	assert.Equal(t, "2026-08-25", gotQuery["to"])
	assert.Equal(t, "d", gotQuery["period"])

	assert.Equal(t, 237.5, result[1].Close)
	assert.Equal(t, time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC), result[0].Date)
}

func TestGetNews(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/news", r.URL.Path)
		assert.Equal(t, "AAPL.US,MSFT.US", r.URL.Query().Get("s"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			{"date":"2026-08-24 10:30:00","title":"Apple beats estimates","content":"Strong quarter.","link":"https://example.com/1"},
			{"date":"2026-08-23","title":"Date only","content":"","link":"https://example.com/2"}
		]`))
	})
	defer server.Close()

	result, err := client.GetNews(context.Background(), []string{"AAPL.US", "MSFT.US"}, WithLimit(10))
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, "Apple beats estimates", result[0].Title)
	assert.Equal(t, 10, result[0].Date.Hour())
	assert.False(t, result[1].Date.IsZero(), "date-only timestamps should still parse")
}

func TestGetFundamentals(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fundamentals/AAPL.US", r.URL.Path)
		w.Write([]byte(`{"General":{"Code":"AAPL","Name":"Apple Inc","Exchange":"NASDAQ","CurrencyCode":"USD"}}`))
	})
	defer server.Close()

	result, err := client.GetFundamentals(context.Background(), "AAPL.US")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", result.General.Name)
	assert.Equal(t, "NASDAQ", result.General.Exchange)
}

func TestGet_APIError(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid API token", http.StatusUnauthorized)
	})
	defer server.Close()

	_, err := client.GetEOD(context.Background(), "AAPL.US")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T", err)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "Invalid API token")
}
