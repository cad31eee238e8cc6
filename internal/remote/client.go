// Package remote предоставляет клиент удалённого каталога товаров.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/inflight-sales/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с удалённым каталогом.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// ProductResponse описывает товар в ответе удалённого каталога.
type ProductResponse struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Unit     int             `json:"unit"`
	PriceUSD decimal.Decimal `json:"priceUSD"`
	PriceEUR decimal.Decimal `json:"priceEUR"`
	PriceGBP decimal.Decimal `json:"priceGBP"`
	ImageURL string          `json:"imageUrl"`
	Category int             `json:"category"`
}

// Product переводит ответ каталога в доменный товар.
func (r ProductResponse) Product() model.Product {
	return model.Product{
		ID:       model.ProductID(r.ID),
		Name:     r.Name,
		Stock:    max(r.Unit, 0),
		PriceUSD: r.PriceUSD,
		PriceEUR: r.PriceEUR,
		PriceGBP: r.PriceGBP,
		ImageURL: r.ImageURL,
		Category: model.CategoryFromCode(r.Category),
	}
}

// NewClient создаёт клиент удалённого каталога по указанному адресу.
func NewClient(baseURL string) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 3
	hc.RetryWaitMin = 200 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	hc.HTTPClient.Timeout = 5 * time.Second
	hc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
}

// GetProducts запрашивает полный список товаров.
func (c *Client) GetProducts(ctx context.Context) ([]model.Product, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("catalog client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, base+"/products", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var items []ProductResponse
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	products := make([]model.Product, 0, len(items))
	for _, it := range items {
		products = append(products, it.Product())
	}

	return products, nil
}
