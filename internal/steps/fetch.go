package steps

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
)

const defaultNewsLimit = 10

// marketSteps implements the two stage-1 fetch steps against the market data
// provider. Both run on the fetch queue class with no dependencies.
type marketSteps struct {
	market    interfaces.MarketDataService
	newsLimit int
	logger    arbor.ILogger
}

func newMarketSteps(market interfaces.MarketDataService, newsLimit int, logger arbor.ILogger) *marketSteps {
	if newsLimit <= 0 {
		newsLimit = defaultNewsLimit
	}
	return &marketSteps{
		market:    market,
		newsLimit: newsLimit,
		logger:    logger,
	}
}

// FetchPriceData retrieves the price series and company metadata
func (s *marketSteps) FetchPriceData(ctx context.Context, input interfaces.StepInput) (interface{}, error) {
	data, err := s.market.FetchPriceData(ctx, input.Ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price data for %s: %w", input.Ticker, err)
	}

	s.logger.Debug().
		Str("ticker", input.Ticker).
		Int("points", len(data.Series)).
		Msg("Fetched price data")

	return data, nil
}

// FetchNews retrieves recent headlines. An empty article list is a valid
// result; downstream steps emit explicit no-news markers for it.
func (s *marketSteps) FetchNews(ctx context.Context, input interfaces.StepInput) (interface{}, error) {
	data, err := s.market.FetchNews(ctx, input.Ticker, s.newsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news for %s: %w", input.Ticker, err)
	}

	s.logger.Debug().
		Str("ticker", input.Ticker).
		Int("articles", len(data.Articles)).
		Msg("Fetched news")

	return data, nil
}
