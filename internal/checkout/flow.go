// Package checkout реализует оплату чека: выбор способа оплаты, проверку
// введённых данных, обработку платежа и списание остатков.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/inflight-sales/internal/cart"
	"github.com/mmeshcher/inflight-sales/internal/model"
	"github.com/mmeshcher/inflight-sales/internal/pricing"
	"github.com/mmeshcher/inflight-sales/internal/validation"
)

var (
	// ErrValidation возвращается, если введённые данные оплаты не прошли проверку.
	ErrValidation = errors.New("payment validation failed")
	// ErrBusy возвращается на любые действия во время обработки платежа.
	ErrBusy = errors.New("payment is being processed")
	// ErrInvalidState возвращается, если действие недопустимо в текущем состоянии.
	ErrInvalidState = errors.New("action not allowed in current state")
)

// State описывает состояние оплаты.
type State string

const (
	StateIdle          State = "IDLE"
	StateAwaitingInput State = "AWAITING_INPUT"
	StateProcessing    State = "PROCESSING"
	StateSuccess       State = "SUCCESS"
	StateClosed        State = "CLOSED"
)

// Method описывает способ оплаты.
type Method string

const (
	MethodCash Method = "CASH"
	MethodCard Method = "CARD"
)

// Line описывает строку чека.
type Line struct {
	ProductID model.ProductID
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total возвращает стоимость строки.
func (l Line) Total() decimal.Decimal {
	return pricing.LineTotal(l.UnitPrice, l.Quantity)
}

// StockUpdater списывает проданное количество товара.
type StockUpdater interface {
	DecrementStock(ctx context.Context, id model.ProductID, quantity int) error
}

// StockFailure описывает строку, остаток которой не удалось списать.
type StockFailure struct {
	ProductID model.ProductID
	Quantity  int
	Err       error
}

// Result описывает проведённый платёж.
type Result struct {
	Method   Method
	Total    decimal.Decimal
	Received decimal.Decimal
	Change   decimal.Decimal
	Lines    []Line
	Failed   []StockFailure
}

// Flow хранит состояние страницы чека одной сессии.
// Не потокобезопасен, вызовы сериализует владелец сессии.
type Flow struct {
	lines    []Line
	currency model.Currency
	customer model.CustomerType

	state  State
	method Method
	seat   string

	cashAmount string
	card       model.CardData

	validationFailed bool
	message          string

	result *Result
}

// NewFlow создаёт чек из переданной корзины. Цена единицы берётся из стоимости
// строки, строки с товарами, отсутствующими в каталоге, отбрасываются.
func NewFlow(h cart.Handoff, products []model.Product) *Flow {
	byID := make(map[model.ProductID]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	lines := make([]Line, 0, len(h.Entries))
	for _, e := range h.Entries {
		p, ok := byID[e.ProductID]
		if !ok || e.Quantity < 1 {
			continue
		}
		lines = append(lines, Line{
			ProductID: e.ProductID,
			Name:      p.Name,
			Quantity:  e.Quantity,
			UnitPrice: pricing.Round(e.Total.Div(decimal.NewFromInt(int64(e.Quantity)))),
		})
	}

	return &Flow{
		lines:    lines,
		currency: h.Currency,
		customer: h.CustomerType,
		state:    StateIdle,
	}
}

// Lines возвращает строки чека.
func (f *Flow) Lines() []Line { return append([]Line(nil), f.lines...) }

// Currency возвращает валюту чека.
func (f *Flow) Currency() model.Currency { return f.currency }

// CustomerType возвращает тип покупателя, по которому посчитаны цены.
func (f *Flow) CustomerType() model.CustomerType { return f.customer }

// State возвращает текущее состояние оплаты.
func (f *Flow) State() State { return f.state }

// Method возвращает выбранный способ оплаты.
func (f *Flow) Method() Method { return f.method }

// Seat возвращает номер места пассажира.
func (f *Flow) Seat() string { return f.seat }

// CashAmount возвращает введённую сумму наличных.
func (f *Flow) CashAmount() string { return f.cashAmount }

// Card возвращает введённые данные карты.
func (f *Flow) Card() model.CardData { return f.card }

// ValidationFailed сообщает, что последняя попытка оплаты не прошла проверку.
func (f *Flow) ValidationFailed() bool { return f.validationFailed }

// Message возвращает текст ошибки проверки.
func (f *Flow) Message() string { return f.message }

// Result возвращает результат оплаты после перехода в StateSuccess.
func (f *Flow) Result() *Result { return f.result }

// Total возвращает сумму чека.
func (f *Flow) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range f.lines {
		total = total.Add(l.Total())
	}
	return total
}

// SetSeat задаёт номер места пассажира.
func (f *Flow) SetSeat(seat string) error {
	if err := f.editable(); err != nil {
		return err
	}
	f.seat = seat
	return nil
}

// RemoveLine убирает строку чека целиком. Доступно только до выбора способа оплаты.
func (f *Flow) RemoveLine(id model.ProductID) error {
	if err := f.require(StateIdle); err != nil {
		return err
	}
	for i, l := range f.lines {
		if l.ProductID == id {
			f.lines = append(f.lines[:i], f.lines[i+1:]...)
			break
		}
	}
	return nil
}

// Begin открывает ввод данных выбранного способа оплаты. Если место не указано
// или чек пуст, переход молча отклоняется и возвращается false.
func (f *Flow) Begin(m Method) (bool, error) {
	if m != MethodCash && m != MethodCard {
		return false, fmt.Errorf("unknown payment method %q", m)
	}
	if err := f.require(StateIdle); err != nil {
		return false, err
	}
	if validation.IsBlank(f.seat) || len(f.lines) == 0 {
		return false, nil
	}

	f.state = StateAwaitingInput
	f.method = m
	f.resetInput()
	return true, nil
}

// SetCashAmount задаёт сумму полученных наличных.
func (f *Flow) SetCashAmount(amount string) error {
	if err := f.requireMethod(MethodCash); err != nil {
		return err
	}
	f.cashAmount = amount
	return nil
}

// SetCardNumber задаёт номер карты.
func (f *Flow) SetCardNumber(v string) error {
	return f.updateCard(func(c *model.CardData) { c.Number = v })
}

// SetExpirationDate задаёт срок действия карты.
func (f *Flow) SetExpirationDate(v string) error {
	return f.updateCard(func(c *model.CardData) { c.ExpirationDate = v })
}

// SetCVV задаёт код CVV.
func (f *Flow) SetCVV(v string) error {
	return f.updateCard(func(c *model.CardData) { c.CVV = v })
}

// SetHolderName задаёт имя держателя карты.
func (f *Flow) SetHolderName(v string) error {
	return f.updateCard(func(c *model.CardData) { c.HolderName = v })
}

// SetCard задаёт все данные карты разом.
func (f *Flow) SetCard(card model.CardData) error {
	return f.updateCard(func(c *model.CardData) { *c = card })
}

// Cancel закрывает ввод данных оплаты и сбрасывает введённые значения.
func (f *Flow) Cancel() error {
	if err := f.require(StateAwaitingInput); err != nil {
		return err
	}
	f.state = StateIdle
	f.method = ""
	f.resetInput()
	return nil
}

// Submit проверяет введённые данные. При ошибке выставляет признак ошибки
// и остаётся в ожидании ввода, при успехе переходит к обработке платежа.
func (f *Flow) Submit() error {
	if err := f.require(StateAwaitingInput); err != nil {
		return err
	}

	var res validation.Result
	switch f.method {
	case MethodCash:
		res = validation.ValidateCash(f.cashAmount, f.Total())
	case MethodCard:
		res = validation.ValidateCard(f.card, !validation.IsBlank(f.seat))
	}

	if !res.Valid {
		f.validationFailed = true
		f.message = res.Message
		return ErrValidation
	}

	f.validationFailed = false
	f.message = ""
	f.state = StateProcessing
	return nil
}

// Complete завершает обработку платежа: для каждой строки один раз списывает
// остаток и переводит оплату в StateSuccess. Списание не транзакционно,
// ошибки отдельных строк попадают в Result.Failed.
func (f *Flow) Complete(ctx context.Context, stock StockUpdater) (*Result, error) {
	if f.state != StateProcessing {
		return nil, ErrInvalidState
	}

	total := f.Total()
	res := &Result{
		Method:   f.method,
		Total:    total,
		Received: total,
		Change:   decimal.Zero,
		Lines:    f.Lines(),
	}
	if f.method == MethodCash {
		res.Received = validation.ParseAmount(f.cashAmount)
		res.Change = validation.Change(f.cashAmount, total)
	}

	for _, l := range f.lines {
		if err := stock.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
			res.Failed = append(res.Failed, StockFailure{ProductID: l.ProductID, Quantity: l.Quantity, Err: err})
		}
	}

	f.state = StateSuccess
	f.result = res
	return res, nil
}

// Finish закрывает сообщение об успешной оплате. Чек очищается.
func (f *Flow) Finish() error {
	if err := f.require(StateSuccess); err != nil {
		return err
	}
	f.state = StateClosed
	f.lines = nil
	f.resetInput()
	return nil
}

func (f *Flow) updateCard(fn func(c *model.CardData)) error {
	if err := f.requireMethod(MethodCard); err != nil {
		return err
	}
	fn(&f.card)
	return nil
}

func (f *Flow) resetInput() {
	f.cashAmount = ""
	f.card = model.CardData{}
	f.validationFailed = false
	f.message = ""
}

func (f *Flow) editable() error {
	switch f.state {
	case StateProcessing:
		return ErrBusy
	case StateSuccess, StateClosed:
		return ErrInvalidState
	}
	return nil
}

func (f *Flow) require(s State) error {
	if f.state == s {
		return nil
	}
	if f.state == StateProcessing {
		return ErrBusy
	}
	return ErrInvalidState
}

func (f *Flow) requireMethod(m Method) error {
	if err := f.require(StateAwaitingInput); err != nil {
		return err
	}
	if f.method != m {
		return ErrInvalidState
	}
	return nil
}
