package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/inflight-sales/internal/checkout"
	"github.com/mmeshcher/inflight-sales/internal/events"
	"github.com/mmeshcher/inflight-sales/internal/handoff"
	"github.com/mmeshcher/inflight-sales/internal/model"
)

// ReceiptView описывает состояние страницы чека, отдаваемое клиенту.
type ReceiptView struct {
	SessionID        string
	State            checkout.State
	Method           checkout.Method
	Seat             string
	Currency         model.Currency
	CustomerType     model.CustomerType
	Lines            []checkout.Line
	Total            decimal.Decimal
	CashAmount       string
	Card             model.CardData
	ValidationFailed bool
	Message          string
	Result           *checkout.Result
}

// PaymentInput содержит данные, введённые для выбранного способа оплаты.
type PaymentInput struct {
	CashAmount string
	Card       model.CardData
}

type receiptSession struct {
	id         string
	origin     string
	mu         sync.Mutex
	flow       *checkout.Flow
	closed     bool
	lastSeen   atomic.Int64
	processing atomic.Bool
}

// view собирает состояние страницы. Вызывается под rs.mu.
func (rs *receiptSession) view() ReceiptView {
	return ReceiptView{
		SessionID:        rs.id,
		State:            rs.flow.State(),
		Method:           rs.flow.Method(),
		Seat:             rs.flow.Seat(),
		Currency:         rs.flow.Currency(),
		CustomerType:     rs.flow.CustomerType(),
		Lines:            rs.flow.Lines(),
		Total:            rs.flow.Total(),
		CashAmount:       rs.flow.CashAmount(),
		Card:             rs.flow.Card(),
		ValidationFailed: rs.flow.ValidationFailed(),
		Message:          rs.flow.Message(),
		Result:           rs.flow.Result(),
	}
}

// OpenReceipt открывает страницу чека по токену передачи корзины. Токен одноразовый;
// токен, заменённый повторной передачей той же корзины, не принимается.
func (s *Service) OpenReceipt(ctx context.Context, token string) (ReceiptView, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return ReceiptView{}, fmt.Errorf("list products: %w", err)
	}

	h, err := s.handoffs.Take(ctx, token)
	if err != nil {
		return ReceiptView{}, fmt.Errorf("take handoff: %w", err)
	}

	rs := &receiptSession{
		id:   uuid.NewString(),
		flow: checkout.NewFlow(h, products),
	}
	rs.lastSeen.Store(s.now().UnixNano())

	s.sessionsMu.Lock()
	if o, ok := s.origins[token]; ok {
		delete(s.origins, token)
		if s.pending[o.catalogID] != token {
			s.sessionsMu.Unlock()
			return ReceiptView{}, fmt.Errorf("take handoff: %w", handoff.ErrNotFound)
		}
		delete(s.pending, o.catalogID)
		rs.origin = o.catalogID
	}
	s.receipts[rs.id] = rs
	s.sessionsMu.Unlock()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.view(), nil
}

// ReceiptState возвращает текущее состояние страницы чека.
func (s *Service) ReceiptState(id string) (ReceiptView, error) {
	return s.withReceipt(id, func(*checkout.Flow) error { return nil })
}

// SetSeat задаёт номер места пассажира.
func (s *Service) SetSeat(id, seat string) (ReceiptView, error) {
	return s.withReceipt(id, func(f *checkout.Flow) error {
		return f.SetSeat(seat)
	})
}

// RemoveReceiptLine убирает строку чека до выбора способа оплаты.
func (s *Service) RemoveReceiptLine(id string, productID model.ProductID) (ReceiptView, error) {
	return s.withReceipt(id, func(f *checkout.Flow) error {
		return f.RemoveLine(productID)
	})
}

// BeginPayment открывает ввод данных оплаты. Второе значение false означает,
// что переход молча отклонён: не указано место или чек пуст.
func (s *Service) BeginPayment(id string, m checkout.Method) (ReceiptView, bool, error) {
	var started bool
	view, err := s.withReceipt(id, func(f *checkout.Flow) error {
		var err error
		started, err = f.Begin(m)
		return err
	})
	return view, started, err
}

// CancelPayment закрывает ввод данных оплаты.
func (s *Service) CancelPayment(id string) (ReceiptView, error) {
	return s.withReceipt(id, func(f *checkout.Flow) error {
		return f.Cancel()
	})
}

// SubmitPayment проверяет введённые данные и при успехе запускает обработку платежа.
// Обработка завершается в фоне через paymentDelay и не отменяется вместе с запросом.
func (s *Service) SubmitPayment(id string, in PaymentInput) (ReceiptView, error) {
	rs, err := s.receiptSession(id)
	if err != nil {
		return ReceiptView{}, err
	}

	return s.onReceipt(rs, func(f *checkout.Flow) error {
		var err error
		switch f.Method() {
		case checkout.MethodCash:
			err = f.SetCashAmount(in.CashAmount)
		case checkout.MethodCard:
			err = f.SetCard(in.Card)
		}
		if err != nil {
			return err
		}
		if err := f.Submit(); err != nil {
			return err
		}

		rs.processing.Store(true)
		s.processing.Add(1)
		go s.process(rs)
		return nil
	})
}

// FinishReceipt закрывает сообщение об успешной оплате и сессию чека.
// Корзина исходной страницы каталога очищается.
func (s *Service) FinishReceipt(id string) (ReceiptView, error) {
	rs, err := s.receiptSession(id)
	if err != nil {
		return ReceiptView{}, err
	}

	view, err := s.onReceipt(rs, func(f *checkout.Flow) error {
		return f.Finish()
	})
	if err != nil {
		return view, err
	}

	s.sessionsMu.Lock()
	delete(s.receipts, id)
	s.sessionsMu.Unlock()

	if rs.origin != "" {
		s.clearCart(rs.origin)
	}
	return view, nil
}

// CloseReceipt закрывает страницу чека без оплаты. Во время обработки платежа недоступно.
func (s *Service) CloseReceipt(id string) error {
	rs, err := s.receiptSession(id)
	if err != nil {
		return err
	}
	if rs.processing.Load() {
		return checkout.ErrBusy
	}

	s.sessionsMu.Lock()
	delete(s.receipts, id)
	s.sessionsMu.Unlock()
	return nil
}

// process завершает платёж после задержки: списывает остатки и публикует событие продажи.
func (s *Service) process(rs *receiptSession) {
	defer s.processing.Done()
	defer rs.processing.Store(false)

	timer := time.NewTimer(s.paymentDelay)
	<-timer.C

	ctx, cancel := context.WithTimeout(context.Background(), stockUpdateTimeout)
	defer cancel()

	rs.mu.Lock()
	res, err := rs.flow.Complete(ctx, s)
	seat, currency, customer := rs.flow.Seat(), rs.flow.Currency(), rs.flow.CustomerType()
	rs.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to complete payment", zap.Error(err), zap.String("sessionID", rs.id))
		return
	}

	for _, f := range res.Failed {
		s.logger.Error("failed to decrement stock",
			zap.Error(f.Err),
			zap.Int("productID", int(f.ProductID)),
			zap.Int("quantity", f.Quantity),
			zap.String("sessionID", rs.id))
	}

	sale := events.NewSale(seat, currency, customer, res, s.now())
	if err := s.publisher.PublishSale(ctx, sale); err != nil {
		s.logger.Warn("failed to publish sale", zap.Error(err), zap.String("saleID", sale.ID))
		return
	}

	s.logger.Info("payment completed",
		zap.String("saleID", sale.ID),
		zap.String("method", sale.Method),
		zap.String("total", sale.Total),
		zap.String("currency", sale.Currency))
}

func (s *Service) receiptSession(id string) (*receiptSession, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	rs, ok := s.receipts[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return rs, nil
}

func (s *Service) withReceipt(id string, fn func(*checkout.Flow) error) (ReceiptView, error) {
	rs, err := s.receiptSession(id)
	if err != nil {
		return ReceiptView{}, err
	}
	return s.onReceipt(rs, fn)
}

// onReceipt выполняет действие над оплатой под блокировкой сессии.
// Состояние возвращается и при ошибке действия.
func (s *Service) onReceipt(rs *receiptSession, fn func(*checkout.Flow) error) (ReceiptView, error) {
	rs.lastSeen.Store(s.now().UnixNano())

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.closed {
		return ReceiptView{}, ErrSessionNotFound
	}
	err := fn(rs.flow)
	return rs.view(), err
}
