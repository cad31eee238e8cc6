package handler

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/inflight-sales/internal/cart"
	"github.com/mmeshcher/inflight-sales/internal/checkout"
	"github.com/mmeshcher/inflight-sales/internal/model"
	"github.com/mmeshcher/inflight-sales/internal/pricing"
	"github.com/mmeshcher/inflight-sales/internal/service"
)

type productResponse struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Unit     int    `json:"unit"`
	PriceUSD string `json:"priceUSD"`
	PriceEUR string `json:"priceEUR"`
	PriceGBP string `json:"priceGBP"`
	ImageURL string `json:"imageUrl"`
	Category string `json:"category"`
}

func newProductResponse(p model.Product) productResponse {
	return productResponse{
		ID:       int(p.ID),
		Name:     p.Name,
		Unit:     p.Stock,
		PriceUSD: p.PriceUSD.StringFixed(2),
		PriceEUR: p.PriceEUR.StringFixed(2),
		PriceGBP: p.PriceGBP.StringFixed(2),
		ImageURL: p.ImageURL,
		Category: string(p.Category),
	}
}

type catalogItemResponse struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Unit           int    `json:"unit"`
	ImageURL       string `json:"imageUrl"`
	Category       string `json:"category"`
	Price          string `json:"price"`
	PriceFormatted string `json:"priceFormatted"`
	UnitsSelected  int    `json:"unitsSelected"`
}

type cartLineResponse struct {
	ProductID  int    `json:"productId"`
	Quantity   int    `json:"quantity"`
	TotalPrice string `json:"totalPrice"`
}

type catalogResponse struct {
	Loading        bool                  `json:"loading"`
	Error          string                `json:"error,omitempty"`
	Version        uint64                `json:"version"`
	Filter         string                `json:"filter"`
	Currency       string                `json:"currency"`
	CustomerType   string                `json:"customerType"`
	Products       []catalogItemResponse `json:"products"`
	Cart           []cartLineResponse    `json:"cart"`
	ItemCount      int                   `json:"itemCount"`
	Total          string                `json:"total"`
	TotalFormatted string                `json:"totalFormatted"`
}

func newCatalogResponse(v service.CatalogView) catalogResponse {
	resp := catalogResponse{
		Loading:        v.Loading,
		Version:        v.Version,
		Filter:         string(v.Filter),
		Currency:       string(v.Currency),
		CustomerType:   string(v.CustomerType),
		Products:       make([]catalogItemResponse, 0, len(v.Products)),
		Cart:           newCartLines(v.Cart),
		ItemCount:      v.Summary.ItemCount,
		Total:          v.Summary.Total.StringFixed(2),
		TotalFormatted: pricing.Format(v.Summary.Total, v.Currency),
	}
	if v.Err != nil {
		resp.Error = "catalog unavailable"
	}

	for _, p := range v.Products {
		resp.Products = append(resp.Products, catalogItemResponse{
			ID:             int(p.ID),
			Name:           p.Name,
			Unit:           p.Stock,
			ImageURL:       p.ImageURL,
			Category:       string(p.Category),
			Price:          p.FinalPrice.StringFixed(2),
			PriceFormatted: pricing.Format(p.FinalPrice, v.Currency),
			UnitsSelected:  p.UnitsSelected,
		})
	}
	return resp
}

func newCartLines(entries []cart.Entry) []cartLineResponse {
	res := make([]cartLineResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, cartLineResponse{
			ProductID:  int(e.ProductID),
			Quantity:   e.Quantity,
			TotalPrice: e.Total.StringFixed(2),
		})
	}
	return res
}

type receiptLineResponse struct {
	ProductID  int    `json:"productId"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
	TotalPrice string `json:"totalPrice"`
}

type cardResponse struct {
	Number         string `json:"number"`
	ExpirationDate string `json:"expirationDate"`
	HolderName     string `json:"holderName"`
}

type resultResponse struct {
	Method      string `json:"method"`
	Total       string `json:"total"`
	Received    string `json:"received"`
	Change      string `json:"change"`
	StockErrors int    `json:"stockErrors"`
}

type receiptResponse struct {
	State            string                `json:"state"`
	Method           string                `json:"method,omitempty"`
	Seat             string                `json:"seat"`
	Currency         string                `json:"currency"`
	CustomerType     string                `json:"customerType"`
	Lines            []receiptLineResponse `json:"lines"`
	Total            string                `json:"total"`
	TotalFormatted   string                `json:"totalFormatted"`
	CashAmount       string                `json:"cashAmount,omitempty"`
	Card             *cardResponse         `json:"card,omitempty"`
	ValidationFailed bool                  `json:"validationFailed"`
	Message          string                `json:"message,omitempty"`
	Result           *resultResponse       `json:"result,omitempty"`
}

// newReceiptResponse собирает ответ страницы чека. CVV в ответ не попадает.
func newReceiptResponse(v service.ReceiptView) receiptResponse {
	resp := receiptResponse{
		State:            string(v.State),
		Method:           string(v.Method),
		Seat:             v.Seat,
		Currency:         string(v.Currency),
		CustomerType:     string(v.CustomerType),
		Lines:            make([]receiptLineResponse, 0, len(v.Lines)),
		Total:            v.Total.StringFixed(2),
		TotalFormatted:   pricing.Format(v.Total, v.Currency),
		CashAmount:       v.CashAmount,
		ValidationFailed: v.ValidationFailed,
		Message:          v.Message,
	}

	for _, l := range v.Lines {
		resp.Lines = append(resp.Lines, receiptLineResponse{
			ProductID:  int(l.ProductID),
			Name:       l.Name,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice.StringFixed(2),
			TotalPrice: l.Total().StringFixed(2),
		})
	}

	if v.Method == checkout.MethodCard {
		resp.Card = &cardResponse{
			Number:         v.Card.Number,
			ExpirationDate: v.Card.ExpirationDate,
			HolderName:     v.Card.HolderName,
		}
	}

	if v.Result != nil {
		resp.Result = &resultResponse{
			Method:      string(v.Result.Method),
			Total:       fixed(v.Result.Total),
			Received:    fixed(v.Result.Received),
			Change:      fixed(v.Result.Change),
			StockErrors: len(v.Result.Failed),
		}
	}
	return resp
}

func fixed(d decimal.Decimal) string {
	return d.StringFixed(2)
}
