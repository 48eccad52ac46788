package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/common"
	"github.com/ternarybob/investiq/internal/eodhd"
	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
)

const sourceName = "eodhd"

// Service implements MarketDataService over the EODHD API
type Service struct {
	client      *eodhd.Client
	pricePeriod time.Duration
	logger      arbor.ILogger
}

var _ interfaces.MarketDataService = (*Service)(nil)

// NewService creates a market data service from the application config
func NewService(cfg *common.MarketConfig, logger arbor.ILogger) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("market API key is required (set INVESTIQ_MARKET_API_KEY or market.api_key in config)")
	}

	opts := []eodhd.ClientOption{
		eodhd.WithLogger(logger),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, eodhd.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestsPerSecond > 0 {
		opts = append(opts, eodhd.WithRateLimit(cfg.RequestsPerSecond))
	}

	pricePeriod, err := parsePricePeriod(cfg.PricePeriod)
	if err != nil {
		return nil, err
	}

	return &Service{
		client:      eodhd.NewClient(cfg.APIKey, opts...),
		pricePeriod: pricePeriod,
		logger:      logger,
	}, nil
}

// FetchPriceData retrieves the price series plus company metadata
func (s *Service) FetchPriceData(ctx context.Context, ticker string) (*models.PriceData, error) {
	symbol := toSymbol(ticker)
	from := time.Now().Add(-s.pricePeriod)

	eod, err := s.client.GetEOD(ctx, symbol, eodhd.WithDateRange(from, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch EOD series for %s: %w", ticker, err)
	}
	if len(eod) == 0 {
		return nil, fmt.Errorf("no price data available for %s", ticker)
	}

	company := models.CompanyInfo{Ticker: ticker}
	if fundamentals, err := s.client.GetFundamentals(ctx, symbol); err != nil {
		// Metadata is nice to have; the series is the required payload
		s.logger.Warn().
			Err(err).
			Str("ticker", ticker).
			Msg("Failed to fetch fundamentals, continuing with bare metadata")
	} else {
		company.Name = fundamentals.General.Name
		company.Exchange = fundamentals.General.Exchange
		company.Currency = fundamentals.General.CurrencyCode
	}

	series := make([]models.PricePoint, 0, len(eod))
	for _, point := range eod {
		series = append(series, models.PricePoint{
			Date:   point.Date,
			Open:   point.Open,
			High:   point.High,
			Low:    point.Low,
			Close:  point.Close,
			Volume: point.Volume,
		})
	}

	return &models.PriceData{
		Company: company,
		Series:  series,
		Source:  sourceName,
	}, nil
}

// FetchNews retrieves recent headlines for a ticker
func (s *Service) FetchNews(ctx context.Context, ticker string, limit int) (*models.NewsData, error) {
	items, err := s.client.GetNews(ctx, []string{toSymbol(ticker)}, eodhd.WithLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news for %s: %w", ticker, err)
	}

	articles := make([]models.NewsArticle, 0, len(items))
	for _, item := range items {
		articles = append(articles, models.NewsArticle{
			Title:       item.Title,
			Content:     item.Content,
			Source:      sourceName,
			URL:         item.Link,
			PublishedAt: item.Date,
		})
	}

	return &models.NewsData{
		Ticker:   ticker,
		Articles: articles,
		Source:   sourceName,
	}, nil
}

// toSymbol converts a bare ticker to EODHD's TICKER.EXCHANGE format,
// defaulting to the US exchange.
func toSymbol(ticker string) string {
	if strings.Contains(ticker, ".") {
		return ticker
	}
	return ticker + ".US"
}

// parsePricePeriod converts the configured lookback ("1y", "6m", "30d")
// into a duration.
func parsePricePeriod(period string) (time.Duration, error) {
	if period == "" {
		period = "1y"
	}
	var n int
	var unit string
	if _, err := fmt.Sscanf(period, "%d%s", &n, &unit); err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid price period %q", period)
	}
	switch unit {
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "m":
		return time.Duration(n) * 30 * 24 * time.Hour, nil
	case "y":
		return time.Duration(n) * 365 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid price period unit %q (want d, m or y)", unit)
}
