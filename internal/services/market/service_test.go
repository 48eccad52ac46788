package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/common"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/eod/AAPL.US", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_token") == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"date": "2026-08-21", "open": 230.0, "high": 235.0, "low": 229.0, "close": 234.0, "volume": 1000000},
			{"date": "2026-08-24", "open": 234.0, "high": 238.0, "low": 233.0, "close": 237.5, "volume": 1200000},
		})
	})
	mux.HandleFunc("/fundamentals/AAPL.US", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"General": map[string]string{
				"Code": "AAPL", "Name": "Apple Inc", "Exchange": "NASDAQ", "CurrencyCode": "USD",
			},
		})
	})
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"date": "2026-08-24 10:30:00", "title": "Apple beats estimates", "content": "Strong quarter.", "link": "https://example.com/1"},
			{"date": "2026-08-23 09:00:00", "title": "New product rumored", "content": "", "link": "https://example.com/2"},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testService(t *testing.T, baseURL string) *Service {
	t.Helper()
	svc, err := NewService(&common.MarketConfig{
		APIKey:            "test_key",
		BaseURL:           baseURL,
		RequestsPerSecond: 100,
		PricePeriod:       "1y",
	}, arbor.NewLogger())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestNewService_RequiresAPIKey(t *testing.T) {
	_, err := NewService(&common.MarketConfig{}, arbor.NewLogger())
	if err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestFetchPriceData(t *testing.T) {
	server := testServer(t)
	svc := testService(t, server.URL)

	data, err := svc.FetchPriceData(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchPriceData failed: %v", err)
	}

	if data.Company.Name != "Apple Inc" || data.Company.Exchange != "NASDAQ" {
		t.Errorf("company = %+v", data.Company)
	}
	if len(data.Series) != 2 {
		t.Fatalf("series length = %d, want 2", len(data.Series))
	}
	if data.Series[1].Close != 237.5 {
		t.Errorf("close = %v, want 237.5", data.Series[1].Close)
	}
	if data.Series[0].Date.IsZero() {
		t.Error("date not parsed")
	}
	if data.Source != "eodhd" {
		t.Errorf("source = %q", data.Source)
	}
}

func TestFetchNews(t *testing.T) {
	server := testServer(t)
	svc := testService(t, server.URL)

	data, err := svc.FetchNews(context.Background(), "AAPL", 10)
	if err != nil {
		t.Fatalf("FetchNews failed: %v", err)
	}

	if len(data.Articles) != 2 {
		t.Fatalf("articles = %d, want 2", len(data.Articles))
	}
	if data.Articles[0].Title != "Apple beats estimates" {
		t.Errorf("title = %q", data.Articles[0].Title)
	}
	if data.Articles[0].PublishedAt.IsZero() {
		t.Error("published_at not parsed")
	}
}

func TestToSymbol(t *testing.T) {
	if got := toSymbol("AAPL"); got != "AAPL.US" {
		t.Errorf("toSymbol(AAPL) = %s", got)
	}
	if got := toSymbol("GNP.AU"); got != "GNP.AU" {
		t.Errorf("toSymbol(GNP.AU) = %s", got)
	}
}

func TestParsePricePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"1y", 365 * 24 * time.Hour, false},
		{"6m", 180 * 24 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"", 365 * 24 * time.Hour, false},
		{"1w", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parsePricePeriod(tt.in)
		if tt.wantErr != (err != nil) {
			t.Errorf("parsePricePeriod(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parsePricePeriod(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
