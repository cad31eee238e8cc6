package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmeshcher/inflight-sales/internal/model"
)

const productsJSON = `[
	{"id":1,"name":"Coca Cola","unit":10,"priceUSD":2.5,"priceEUR":2.3,"priceGBP":2.0,"imageUrl":"https://example.com/coke.jpg","category":2},
	{"id":2,"name":"Sandwich","unit":5,"priceUSD":5.0,"priceEUR":4.5,"priceGBP":4.0,"imageUrl":"https://example.com/sandwich.jpg","category":1},
	{"id":3,"name":"Mystery","unit":-1,"priceUSD":1,"priceEUR":1,"priceGBP":1,"imageUrl":"","category":9}
]`

func newTestClient(url string) *Client {
	c := NewClient(url)
	c.httpClient.RetryWaitMin = time.Millisecond
	c.httpClient.RetryWaitMax = 5 * time.Millisecond
	return c
}

func TestGetProducts_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/products" {
			t.Fatalf("path = %s, want /products", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(productsJSON))
	}))
	defer ts.Close()

	client := newTestClient(ts.URL + "/")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	products, err := client.GetProducts(ctx)
	if err != nil {
		t.Fatalf("GetProducts error: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("len = %d, want 3", len(products))
	}

	coke := products[0]
	if coke.ID != 1 || coke.Name != "Coca Cola" || coke.Stock != 10 {
		t.Fatalf("unexpected product: %+v", coke)
	}
	if coke.PriceUSD.StringFixed(2) != "2.50" || coke.PriceEUR.StringFixed(2) != "2.30" {
		t.Fatalf("unexpected prices: %s %s", coke.PriceUSD, coke.PriceEUR)
	}
	if coke.Category != model.CategoryBeverages {
		t.Fatalf("category = %s, want BEVERAGES", coke.Category)
	}
	if products[1].Category != model.CategoryFood {
		t.Fatalf("category = %s, want FOOD", products[1].Category)
	}
	if products[2].Category != model.CategoryFood || products[2].Stock != 0 {
		t.Fatalf("unknown category must fall back to FOOD and stock to 0: %+v", products[2])
	}
}

func TestGetProducts_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(productsJSON))
	}))
	defer ts.Close()

	products, err := newTestClient(ts.URL).GetProducts(context.Background())
	if err != nil {
		t.Fatalf("GetProducts error: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("len = %d, want 3", len(products))
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestGetProducts_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	if _, err := newTestClient(ts.URL).GetProducts(context.Background()); err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestGetProducts_InvalidBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer ts.Close()

	if _, err := newTestClient(ts.URL).GetProducts(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestGetProducts_NotConfigured(t *testing.T) {
	var c *Client
	if _, err := c.GetProducts(context.Background()); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
