// Package pricing вычисляет итоговые цены товаров с учётом валюты и типа покупателя.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/inflight-sales/internal/model"
)

const scale = 2

// BasePrice возвращает цену товара в выбранной валюте.
func BasePrice(p model.Product, currency model.Currency) decimal.Decimal {
	switch currency {
	case model.CurrencyEUR:
		return p.PriceEUR
	case model.CurrencyGBP:
		return p.PriceGBP
	default:
		return p.PriceUSD
	}
}

// FinalPrice возвращает цену товара в валюте со скидкой типа покупателя,
// округлённую до копеек по правилу half-up.
func FinalPrice(p model.Product, currency model.Currency, customer model.CustomerType) decimal.Decimal {
	return Round(BasePrice(p, currency).Mul(customer.Discount()))
}

// LineTotal возвращает стоимость строки корзины.
func LineTotal(unit decimal.Decimal, quantity int) decimal.Decimal {
	return Round(unit.Mul(decimal.NewFromInt(int64(quantity))))
}

// Round округляет сумму до двух знаков half-up.
func Round(amount decimal.Decimal) decimal.Decimal {
	// decimal.Round округляет половину от нуля, для неотрицательных сумм это half-up.
	return amount.Round(scale)
}

// Format возвращает сумму с символом валюты, например "$10.00".
func Format(amount decimal.Decimal, currency model.Currency) string {
	return currency.Symbol() + amount.StringFixed(scale)
}
