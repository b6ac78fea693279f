// Package runewiki is a client for the RuneScape Wiki real-time prices API.
package runewiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rewired-gh/runesync/internal/logger"
	"github.com/rewired-gh/runesync/internal/models"
)

const iconBaseURL = "https://oldschool.runescape.wiki/images/"

// Client provides access to the prices API
type Client struct {
	baseURL   string
	itemsFile string
	http      *resty.Client
	now       func() time.Time

	mu      sync.Mutex
	catalog *Catalog
}

// latestResponse is the body of GET /latest
type latestResponse struct {
	Data map[string]struct {
		High     *int64 `json:"high"`
		HighTime *int64 `json:"highTime"`
		Low      *int64 `json:"low"`
		LowTime  *int64 `json:"lowTime"`
	} `json:"data"`
}

// timeseriesResponse is the body of GET /timeseries
type timeseriesResponse struct {
	Data []struct {
		Timestamp    int64  `json:"timestamp"`
		AvgHighPrice *int64 `json:"avgHighPrice"`
		AvgLowPrice  *int64 `json:"avgLowPrice"`
	} `json:"data"`
}

// mappingEntry is one element of GET /mapping
type mappingEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// NewClient creates a new prices API client. The wiki rejects requests
// without a descriptive User-Agent. itemsFile, when set, is an "id: name"
// catalog used instead of the /mapping endpoint.
func NewClient(baseURL, userAgent string, timeout time.Duration, itemsFile string) *Client {
	rc := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		itemsFile: itemsFile,
		http:      rc,
		now:       time.Now,
	}
}

// FetchCurrentPrice resolves item and returns its current market price,
// stamped with the fetch time. It has no side effects beyond the request.
func (c *Client) FetchCurrentPrice(ctx context.Context, item models.TrackedItem) (models.PriceSample, models.Item, error) {
	resolved, err := c.Resolve(ctx, item.Name)
	if err != nil {
		return models.PriceSample{}, models.Item{}, err
	}

	var body latestResponse
	if err := c.get(ctx, "/latest", map[string]string{"id": resolved.ID}, &body); err != nil {
		return models.PriceSample{}, resolved, fmt.Errorf("failed to fetch latest price for %s: %w", resolved.ID, err)
	}

	// the wiki omits ids it does not know
	entry, ok := body.Data[resolved.ID]
	if !ok {
		return models.PriceSample{}, resolved, fmt.Errorf("%w: no price data for item %s", models.ErrItemNotFound, resolved.ID)
	}
	price, ok := pickPrice(entry.High, entry.Low)
	if !ok {
		return models.PriceSample{}, resolved, fmt.Errorf("%w: item %s has no high or low price", models.ErrInvalidSample, resolved.ID)
	}

	sample := models.PriceSample{
		ItemID:    resolved.ID,
		Timestamp: c.now().UTC(),
		Price:     price,
	}
	if err := sample.Validate(); err != nil {
		return models.PriceSample{}, resolved, err
	}
	return sample, resolved, nil
}

// FetchHistory returns the average price per timestep ("5m", "1h", "6h" or
// "24h") for the last few hundred steps, oldest first. Points without any
// trade or with a zero price are skipped.
func (c *Client) FetchHistory(ctx context.Context, item models.Item, timestep string) ([]models.PriceSample, error) {
	var body timeseriesResponse
	params := map[string]string{"id": item.ID, "timestep": timestep}
	if err := c.get(ctx, "/timeseries", params, &body); err != nil {
		return nil, fmt.Errorf("failed to fetch %s timeseries for %s: %w", timestep, item.ID, err)
	}

	samples := make([]models.PriceSample, 0, len(body.Data))
	for _, point := range body.Data {
		price, ok := pickPrice(point.AvgHighPrice, point.AvgLowPrice)
		if !ok || price <= 0 {
			continue
		}
		samples = append(samples, models.PriceSample{
			ItemID:    item.ID,
			Timestamp: time.Unix(point.Timestamp, 0).UTC(),
			Price:     price,
		})
	}
	return samples, nil
}

// Resolve maps an item name or id to wiki metadata using the cached catalog.
func (c *Client) Resolve(ctx context.Context, identifier string) (models.Item, error) {
	cat, err := c.loadCatalog(ctx)
	if err != nil {
		// a bare id still works without a catalog
		if id := strings.TrimSpace(identifier); isItemID(id) {
			logger.Debug("Item catalog unavailable, using raw id %s: %v", id, err)
			if n, convErr := strconv.Atoi(id); convErr == nil {
				id = strconv.Itoa(n)
			}
			return models.Item{ID: id, Name: id}, nil
		}
		return models.Item{}, err
	}
	return cat.Resolve(identifier)
}

// loadCatalog loads the catalog once. Failed loads are not cached.
func (c *Client) loadCatalog(ctx context.Context) (*Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalog != nil {
		return c.catalog, nil
	}

	var cat *Catalog
	if c.itemsFile != "" {
		f, err := os.Open(c.itemsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open item catalog: %w", err)
		}
		defer f.Close()
		if cat, err = ParseCatalog(f); err != nil {
			return nil, fmt.Errorf("failed to parse item catalog %s: %w", c.itemsFile, err)
		}
	} else {
		var entries []mappingEntry
		if err := c.get(ctx, "/mapping", nil, &entries); err != nil {
			return nil, fmt.Errorf("failed to fetch item mapping: %w", err)
		}
		items := make([]models.Item, 0, len(entries))
		for _, e := range entries {
			items = append(items, models.Item{
				ID:   strconv.Itoa(e.ID),
				Name: e.Name,
				Icon: IconURL(e.Icon),
			})
		}
		cat = NewCatalog(items)
	}

	logger.Info("Loaded item catalog with %d items", cat.Len())
	c.catalog = cat
	return cat, nil
}

// get performs a single GET and decodes the JSON body into out. Transport
// errors and non-2xx statuses are models.ErrUpstream; an undecodable body is
// models.ErrInvalidSample. There is no retry: the next refresh cycle retries.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrUpstream, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: rate limited (status %d)", models.ErrUpstream, code)
	case code >= 500:
		return fmt.Errorf("%w: server error: %d", models.ErrUpstream, code)
	case code < 200 || code >= 300:
		return fmt.Errorf("%w: unexpected status: %d", models.ErrUpstream, code)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %v", models.ErrInvalidSample, path, err)
	}
	return nil
}

// pickPrice prefers the high price and falls back to the low one.
func pickPrice(high, low *int64) (int64, bool) {
	if high != nil && *high != 0 {
		return *high, true
	}
	if low != nil {
		return *low, true
	}
	if high != nil {
		return *high, true
	}
	return 0, false
}

// IconURL returns the wiki image URL for an icon file name.
func IconURL(icon string) string {
	if icon == "" {
		return ""
	}
	return iconBaseURL + strings.ReplaceAll(icon, " ", "_")
}
