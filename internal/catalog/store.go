// Package catalog содержит состояние страницы каталога: товары, выбор валюты,
// типа покупателя и фильтра, а также корзину сессии.
package catalog

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/inflight-sales/internal/cart"
	"github.com/mmeshcher/inflight-sales/internal/model"
	"github.com/mmeshcher/inflight-sales/internal/pricing"
)

// ErrProductNotFound возвращается, если товара нет в текущем каталоге.
var ErrProductNotFound = errors.New("product not found")

// ProductView описывает товар витрины с итоговой ценой и выбранным количеством.
type ProductView struct {
	model.Product
	FinalPrice    decimal.Decimal
	UnitsSelected int
}

// Store хранит состояние страницы каталога одной сессии.
// Не потокобезопасен, вызовы сериализует владелец сессии.
type Store struct {
	products []model.Product
	index    map[model.ProductID]int
	prices   map[model.ProductID]decimal.Decimal

	filter   model.Filter
	currency model.Currency
	customer model.CustomerType

	ledger *cart.Ledger

	version uint64
	loading bool
	err     error
}

// NewStore создаёт состояние каталога в режиме загрузки с валютой USD и розничной ценой.
func NewStore() *Store {
	return &Store{
		index:    make(map[model.ProductID]int),
		prices:   make(map[model.ProductID]decimal.Decimal),
		filter:   model.FilterAll,
		currency: model.CurrencyUSD,
		customer: model.CustomerRetail,
		ledger:   cart.NewLedger(),
		loading:  true,
	}
}

// ApplySnapshot применяет очередную версию каталога. Версии не новее уже применённой
// игнорируются. Выбранные количества сохраняются по идентификатору товара,
// строки исчезнувших товаров удаляются.
func (s *Store) ApplySnapshot(version uint64, products []model.Product) bool {
	if !s.loading && version <= s.version {
		return false
	}

	s.products = append(s.products[:0:0], products...)
	clear(s.index)
	for i, p := range s.products {
		s.index[p.ID] = i
	}

	s.version = version
	s.loading = false
	s.err = nil
	s.reprice()
	return true
}

// Fail переводит страницу в состояние ошибки загрузки каталога.
func (s *Store) Fail(err error) {
	s.loading = false
	s.err = err
}

// Err возвращает ошибку загрузки каталога, если она была.
func (s *Store) Err() error { return s.err }

// Loading сообщает, что каталог ещё не получен.
func (s *Store) Loading() bool { return s.loading }

// Version возвращает версию применённого каталога.
func (s *Store) Version() uint64 { return s.version }

// Filter возвращает выбранный фильтр.
func (s *Store) Filter() model.Filter { return s.filter }

// Currency возвращает выбранную валюту.
func (s *Store) Currency() model.Currency { return s.currency }

// CustomerType возвращает выбранный тип покупателя.
func (s *Store) CustomerType() model.CustomerType { return s.customer }

// SelectFilter меняет фильтр витрины.
func (s *Store) SelectFilter(f model.Filter) {
	s.filter = f
}

// SelectCurrency меняет валюту и пересчитывает цены и корзину.
func (s *Store) SelectCurrency(c model.Currency) {
	s.currency = c
	s.reprice()
}

// SelectCustomerType меняет тип покупателя и пересчитывает цены и корзину.
func (s *Store) SelectCustomerType(t model.CustomerType) {
	s.customer = t
	s.reprice()
}

// Add добавляет единицу товара в корзину.
func (s *Store) Add(id model.ProductID) error {
	i, ok := s.index[id]
	if !ok {
		return ErrProductNotFound
	}
	return s.ledger.Add(s.products[i], s.prices[id])
}

// Remove убирает единицу товара из корзины.
func (s *Store) Remove(id model.ProductID) {
	s.ledger.Remove(id, s.prices[id])
}

// Summary возвращает итог корзины.
func (s *Store) Summary() cart.Summary {
	return s.ledger.Summary()
}

// Cart возвращает строки корзины.
func (s *Store) Cart() []cart.Entry {
	return s.ledger.Entries()
}

// Products возвращает все товары каталога в исходном порядке.
func (s *Store) Products() []ProductView {
	return s.views(model.FilterAll)
}

// Visible возвращает товары, прошедшие выбранный фильтр, в исходном порядке.
func (s *Store) Visible() []ProductView {
	return s.views(s.filter)
}

// Handoff снимает копию корзины для страницы чека.
func (s *Store) Handoff() cart.Handoff {
	return s.ledger.Handoff(s.currency, s.customer)
}

// ClearCart очищает корзину после успешной оплаты.
func (s *Store) ClearCart() {
	s.ledger.Clear()
}

func (s *Store) views(f model.Filter) []ProductView {
	res := make([]ProductView, 0, len(s.products))
	for _, p := range s.products {
		if !f.Matches(p.Category) {
			continue
		}
		res = append(res, ProductView{
			Product:       p,
			FinalPrice:    s.prices[p.ID],
			UnitsSelected: s.ledger.Quantity(p.ID),
		})
	}
	return res
}

func (s *Store) reprice() {
	clear(s.prices)
	for _, p := range s.products {
		s.prices[p.ID] = pricing.FinalPrice(p, s.currency, s.customer)
	}
	s.ledger.Reprice(func(id model.ProductID) (decimal.Decimal, bool) {
		price, ok := s.prices[id]
		return price, ok
	})
}
