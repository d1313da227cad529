package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lumenshop/visualsearch/internal/domain"
)

// Feed reads the product catalog feed from the owned store.
type Feed struct {
	url    string
	client *http.Client
}

// NewFeed creates a feed reader for <storeBaseURL>/<feedPath>.
func NewFeed(storeBaseURL, feedPath string, timeout time.Duration) *Feed {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Feed{
		url:    storeBaseURL + "/" + feedPath,
		client: &http.Client{Timeout: timeout},
	}
}

// feedItem matches the catalog feed record layout.
type feedItem struct {
	ItemID   string `json:"item_id"`
	ItemName []struct {
		Value string `json:"value"`
	} `json:"item_name"`
	MainImagePath string `json:"main_image_path"`
}

// Products fetches and decodes the feed, preserving feed order.
func (f *Feed) Products(ctx context.Context) ([]domain.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("fetch feed: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var items []feedItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	products := make([]domain.Product, 0, len(items))
	for i, item := range items {
		if item.ItemID == "" {
			return nil, fmt.Errorf("feed record %d has no item_id", i)
		}
		if len(item.ItemName) == 0 {
			return nil, fmt.Errorf("feed record %s has no item_name", item.ItemID)
		}
		products = append(products, domain.Product{
			ID:            item.ItemID,
			Name:          item.ItemName[0].Value,
			MainImagePath: item.MainImagePath,
		})
	}
	return products, nil
}
