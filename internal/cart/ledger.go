// Package cart содержит корзину сессии: соответствие товаров выбранным количествам.
package cart

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/inflight-sales/internal/model"
	"github.com/mmeshcher/inflight-sales/internal/pricing"
)

// ErrOutOfStock возвращается при попытке добавить товар сверх остатка.
var ErrOutOfStock = errors.New("product out of stock")

// Entry описывает строку корзины. Quantity всегда не меньше единицы.
type Entry struct {
	ProductID model.ProductID
	Quantity  int
	Total     decimal.Decimal
}

// Summary содержит итог корзины.
type Summary struct {
	Total     decimal.Decimal
	ItemCount int
}

// Ledger хранит строки корзины по идентификатору товара.
// Не потокобезопасен, владелец сессии сериализует вызовы.
type Ledger struct {
	entries map[model.ProductID]Entry
}

// NewLedger создаёт пустую корзину.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[model.ProductID]Entry)}
}

// Add увеличивает количество товара на единицу по цене unit.
func (l *Ledger) Add(p model.Product, unit decimal.Decimal) error {
	e, ok := l.entries[p.ID]
	if p.Stock-e.Quantity <= 0 {
		return ErrOutOfStock
	}
	if !ok {
		e = Entry{ProductID: p.ID}
	}
	e.Quantity++
	e.Total = pricing.LineTotal(unit, e.Quantity)
	l.entries[p.ID] = e
	return nil
}

// Remove уменьшает количество товара на единицу по цене unit.
// Строка удаляется, когда количество доходит до нуля.
func (l *Ledger) Remove(id model.ProductID, unit decimal.Decimal) {
	e, ok := l.entries[id]
	if !ok {
		return
	}
	if e.Quantity <= 1 {
		delete(l.entries, id)
		return
	}
	e.Quantity--
	e.Total = pricing.LineTotal(unit, e.Quantity)
	l.entries[id] = e
}

// Quantity возвращает выбранное количество товара.
func (l *Ledger) Quantity(id model.ProductID) int {
	return l.entries[id].Quantity
}

// Len возвращает число строк корзины.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries возвращает строки корзины, отсортированные по идентификатору товара.
func (l *Ledger) Entries() []Entry {
	res := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ProductID < res[j].ProductID })
	return res
}

// Summary возвращает сумму и число единиц товара, вычисленные по текущим строкам.
func (l *Ledger) Summary() Summary {
	s := Summary{Total: decimal.Zero}
	for _, e := range l.entries {
		s.Total = s.Total.Add(e.Total)
		s.ItemCount += e.Quantity
	}
	return s
}

// Reprice пересчитывает стоимость всех строк по новым ценам, сохраняя количества.
// Строки, для которых цена не найдена, удаляются.
func (l *Ledger) Reprice(unitPrice func(model.ProductID) (decimal.Decimal, bool)) {
	for id, e := range l.entries {
		unit, ok := unitPrice(id)
		if !ok {
			delete(l.entries, id)
			continue
		}
		e.Total = pricing.LineTotal(unit, e.Quantity)
		l.entries[id] = e
	}
}

// Clear очищает корзину.
func (l *Ledger) Clear() {
	clear(l.entries)
}
