// Package model содержит доменные сущности сервиса бортовых продаж.
package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ProductID идентифицирует товар каталога.
type ProductID int

// Category описывает категорию товара.
type Category string

const (
	CategoryFood      Category = "FOOD"
	CategoryBeverages Category = "BEVERAGES"
)

// CategoryFromCode переводит числовой код категории удалённого каталога в Category.
// Неизвестные коды относятся к еде.
func CategoryFromCode(code int) Category {
	switch code {
	case 2:
		return CategoryBeverages
	default:
		return CategoryFood
	}
}

// Code возвращает числовой код категории для хранилища.
func (c Category) Code() int {
	if c == CategoryBeverages {
		return 2
	}
	return 1
}

// Product описывает товар каталога. После загрузки не изменяется.
type Product struct {
	ID       ProductID
	Name     string
	Stock    int
	PriceUSD decimal.Decimal
	PriceEUR decimal.Decimal
	PriceGBP decimal.Decimal
	ImageURL string
	Category Category
}

// Currency описывает валюту оплаты.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// Currencies перечисляет поддерживаемые валюты в порядке отображения.
var Currencies = []Currency{CurrencyUSD, CurrencyEUR, CurrencyGBP}

// Symbol возвращает символ валюты.
func (c Currency) Symbol() string {
	switch c {
	case CurrencyEUR:
		return "€"
	case CurrencyGBP:
		return "£"
	default:
		return "$"
	}
}

// Label возвращает отображаемое название валюты.
func (c Currency) Label() string {
	return string(c)
}

// ParseCurrency разбирает код валюты.
func ParseCurrency(s string) (Currency, error) {
	for _, c := range Currencies {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown currency %q", s)
}

// CustomerType описывает тип покупателя, определяющий скидку.
type CustomerType string

const (
	CustomerRetail             CustomerType = "RETAIL"
	CustomerCrew               CustomerType = "CREW"
	CustomerHappyHour          CustomerType = "HAPPY_HOUR"
	CustomerBusinessInvitation CustomerType = "BUSINESS_INVITATION"
	CustomerTouristInvitation  CustomerType = "TOURIST_INVITATION"
)

var discounts = map[CustomerType]decimal.Decimal{
	CustomerRetail:             decimal.RequireFromString("1.00"),
	CustomerCrew:               decimal.RequireFromString("0.85"),
	CustomerHappyHour:          decimal.RequireFromString("0.80"),
	CustomerBusinessInvitation: decimal.RequireFromString("0.70"),
	CustomerTouristInvitation:  decimal.RequireFromString("0.75"),
}

// CustomerTypes перечисляет типы покупателей в порядке отображения.
var CustomerTypes = []CustomerType{
	CustomerRetail,
	CustomerCrew,
	CustomerHappyHour,
	CustomerBusinessInvitation,
	CustomerTouristInvitation,
}

// Discount возвращает множитель цены для типа покупателя.
func (t CustomerType) Discount() decimal.Decimal {
	if d, ok := discounts[t]; ok {
		return d
	}
	return decimal.NewFromInt(1)
}

// ParseCustomerType разбирает тип покупателя.
func ParseCustomerType(s string) (CustomerType, error) {
	t := CustomerType(s)
	if _, ok := discounts[t]; !ok {
		return "", fmt.Errorf("unknown customer type %q", s)
	}
	return t, nil
}

// Filter описывает фильтр витрины.
type Filter string

const (
	FilterAll       Filter = "ALL"
	FilterFood      Filter = "FOOD"
	FilterBeverages Filter = "BEVERAGES"
)

// ParseFilter разбирает фильтр витрины.
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case FilterAll, FilterFood, FilterBeverages:
		return Filter(s), nil
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// Matches сообщает, проходит ли категория через фильтр.
func (f Filter) Matches(c Category) bool {
	return f == FilterAll || string(f) == string(c)
}

// CardData содержит данные банковской карты, введённые бортпроводником.
type CardData struct {
	Number         string `json:"number"`
	ExpirationDate string `json:"expirationDate"`
	CVV            string `json:"cvv"`
	HolderName     string `json:"holderName"`
}
