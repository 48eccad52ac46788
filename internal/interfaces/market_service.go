package interfaces

import (
	"context"

	"github.com/ternarybob/investiq/internal/models"
)

// MarketDataService fetches price series and news headlines for a ticker
type MarketDataService interface {
	FetchPriceData(ctx context.Context, ticker string) (*models.PriceData, error)
	FetchNews(ctx context.Context, ticker string, limit int) (*models.NewsData, error)
}
