package cart

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/inflight-sales/internal/model"
)

// ErrInvalidHandoff возвращается при разборе некорректной передачи корзины.
var ErrInvalidHandoff = errors.New("invalid cart handoff")

// Handoff передаёт корзину и выбор цены со страницы каталога на страницу чека.
type Handoff struct {
	Entries      []Entry
	Currency     model.Currency
	CustomerType model.CustomerType
}

// Handoff снимает копию корзины для передачи на страницу чека.
func (l *Ledger) Handoff(currency model.Currency, customer model.CustomerType) Handoff {
	return Handoff{
		Entries:      l.Entries(),
		Currency:     currency,
		CustomerType: customer,
	}
}

type entryJSON struct {
	ProductID  int    `json:"productId"`
	Quantity   int    `json:"quantity"`
	TotalPrice string `json:"totalPrice"`
}

type handoffJSON struct {
	Cart         []entryJSON `json:"cart"`
	Currency     string      `json:"currency"`
	CustomerType string      `json:"customerType"`
}

// MarshalJSON кодирует передачу корзины. Суммы передаются строкой с двумя знаками.
func (h Handoff) MarshalJSON() ([]byte, error) {
	out := handoffJSON{
		Cart:         make([]entryJSON, 0, len(h.Entries)),
		Currency:     string(h.Currency),
		CustomerType: string(h.CustomerType),
	}
	for _, e := range h.Entries {
		out.Cart = append(out.Cart, entryJSON{
			ProductID:  int(e.ProductID),
			Quantity:   e.Quantity,
			TotalPrice: e.Total.StringFixed(2),
		})
	}
	return json.Marshal(out)
}

// UnmarshalJSON разбирает передачу корзины и проверяет инварианты строк.
func (h *Handoff) UnmarshalJSON(data []byte) error {
	var in handoffJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHandoff, err)
	}

	currency, err := model.ParseCurrency(in.Currency)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHandoff, err)
	}
	customer := model.CustomerRetail
	if in.CustomerType != "" {
		if customer, err = model.ParseCustomerType(in.CustomerType); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidHandoff, err)
		}
	}

	seen := make(map[model.ProductID]struct{}, len(in.Cart))
	entries := make([]Entry, 0, len(in.Cart))
	for _, e := range in.Cart {
		id := model.ProductID(e.ProductID)
		if e.Quantity < 1 {
			return fmt.Errorf("%w: product %d has quantity %d", ErrInvalidHandoff, e.ProductID, e.Quantity)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate product %d", ErrInvalidHandoff, e.ProductID)
		}
		seen[id] = struct{}{}

		total, err := decimal.NewFromString(e.TotalPrice)
		if err != nil {
			return fmt.Errorf("%w: product %d total: %w", ErrInvalidHandoff, e.ProductID, err)
		}
		entries = append(entries, Entry{ProductID: id, Quantity: e.Quantity, Total: total})
	}

	*h = Handoff{Entries: entries, Currency: currency, CustomerType: customer}
	return nil
}
