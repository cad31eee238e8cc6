package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/inflight-sales/internal/cart"
	"github.com/mmeshcher/inflight-sales/internal/catalog"
	"github.com/mmeshcher/inflight-sales/internal/checkout"
	"github.com/mmeshcher/inflight-sales/internal/handoff"
	"github.com/mmeshcher/inflight-sales/internal/model"
)

const syncTimeout = 30 * time.Second

// CatalogView описывает состояние страницы каталога, отдаваемое клиенту.
type CatalogView struct {
	SessionID    string
	Loading      bool
	Err          error
	Version      uint64
	Filter       model.Filter
	Currency     model.Currency
	CustomerType model.CustomerType
	Products     []catalog.ProductView
	Cart         []cart.Entry
	Summary      cart.Summary
}

type catalogSession struct {
	id       string
	mu       sync.Mutex
	store    *catalog.Store
	cancel   func()
	lastSeen atomic.Int64
}

func (cs *catalogSession) touch(now time.Time) {
	cs.lastSeen.Store(now.UnixNano())
}

// view собирает состояние страницы. Вызывается под cs.mu.
func (cs *catalogSession) view() CatalogView {
	return CatalogView{
		SessionID:    cs.id,
		Loading:      cs.store.Loading(),
		Err:          cs.store.Err(),
		Version:      cs.store.Version(),
		Filter:       cs.store.Filter(),
		Currency:     cs.store.Currency(),
		CustomerType: cs.store.CustomerType(),
		Products:     cs.store.Visible(),
		Cart:         cs.store.Cart(),
		Summary:      cs.store.Summary(),
	}
}

// OpenCatalog открывает новую сессию страницы каталога и подписывает её на обновления.
// Если каталог ещё не синхронизирован, синхронизация запускается в фоне.
func (s *Service) OpenCatalog(ctx context.Context) (CatalogView, error) {
	cs := &catalogSession{
		id:    uuid.NewString(),
		store: catalog.NewStore(),
	}
	cs.touch(s.now())

	cancel, err := s.Subscribe(ctx, func(snap Snapshot) {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		cs.store.ApplySnapshot(snap.Version, snap.Products)
	})
	cs.cancel = cancel
	if err != nil {
		s.logger.Error("failed to load catalog", zap.Error(err), zap.String("sessionID", cs.id))
		cs.mu.Lock()
		cs.store.Fail(err)
		cs.mu.Unlock()
	}

	s.sessionsMu.Lock()
	s.catalogs[cs.id] = cs
	s.sessionsMu.Unlock()

	if !s.synced.Load() && s.client != nil {
		go func() {
			syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), syncTimeout)
			defer cancel()
			s.SyncIfNeeded(syncCtx)
		}()
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.view(), nil
}

// CatalogState возвращает текущее состояние страницы каталога.
func (s *Service) CatalogState(id string) (CatalogView, error) {
	return s.withCatalog(id, func(*catalog.Store) error { return nil })
}

// SelectFilter меняет фильтр витрины.
func (s *Service) SelectFilter(id string, f model.Filter) (CatalogView, error) {
	return s.withCatalog(id, func(st *catalog.Store) error {
		st.SelectFilter(f)
		return nil
	})
}

// SelectCurrency меняет валюту страницы каталога.
func (s *Service) SelectCurrency(id string, c model.Currency) (CatalogView, error) {
	return s.withCatalog(id, func(st *catalog.Store) error {
		st.SelectCurrency(c)
		return nil
	})
}

// SelectCustomerType меняет тип покупателя страницы каталога.
func (s *Service) SelectCustomerType(id string, t model.CustomerType) (CatalogView, error) {
	return s.withCatalog(id, func(st *catalog.Store) error {
		st.SelectCustomerType(t)
		return nil
	})
}

// AddItem добавляет единицу товара в корзину сессии.
func (s *Service) AddItem(id string, productID model.ProductID) (CatalogView, error) {
	return s.withCatalog(id, func(st *catalog.Store) error {
		return st.Add(productID)
	})
}

// RemoveItem убирает единицу товара из корзины сессии.
func (s *Service) RemoveItem(id string, productID model.ProductID) (CatalogView, error) {
	return s.withCatalog(id, func(st *catalog.Store) error {
		st.Remove(productID)
		return nil
	})
}

// Pay передаёт корзину сессии на страницу чека и возвращает токен передачи.
// Корзина каталога сохраняется до успешной оплаты. Новый токен отменяет
// выданные ранее токены сессии и закрывает открытые по ним чеки. Пока оплата
// этой корзины обрабатывается или не завершена, возвращает checkout.ErrBusy.
func (s *Service) Pay(ctx context.Context, id string) (string, error) {
	var h cart.Handoff
	if _, err := s.withCatalog(id, func(st *catalog.Store) error {
		h = st.Handoff()
		return nil
	}); err != nil {
		return "", err
	}

	token, err := s.handoffs.Put(ctx, h)
	if err != nil {
		return "", fmt.Errorf("store handoff: %w", err)
	}

	s.sessionsMu.Lock()
	prev := s.pending[id]
	s.pending[id] = token
	s.origins[token] = origin{catalogID: id, at: s.now()}
	s.sessionsMu.Unlock()

	if prev != "" {
		s.discardHandoff(ctx, prev)
	}

	if s.supersedeReceipts(id) {
		s.sessionsMu.Lock()
		if s.pending[id] == token {
			delete(s.pending, id)
		}
		s.sessionsMu.Unlock()
		s.discardHandoff(ctx, token)
		return "", checkout.ErrBusy
	}

	return token, nil
}

// discardHandoff удаляет неиспользованную передачу из хранилища.
func (s *Service) discardHandoff(ctx context.Context, token string) {
	_, err := s.handoffs.Take(ctx, token)
	switch {
	case err == nil:
		s.sessionsMu.Lock()
		delete(s.origins, token)
		s.sessionsMu.Unlock()
	case !errors.Is(err, handoff.ErrNotFound):
		s.logger.Warn("failed to discard handoff", zap.Error(err))
	}
}

// supersedeReceipts закрывает чеки, открытые по корзине сессии каталога.
// Возвращает true, если оплата одного из них обрабатывается или уже прошла.
func (s *Service) supersedeReceipts(catalogID string) bool {
	s.sessionsMu.Lock()
	var related []*receiptSession
	for _, rs := range s.receipts {
		if rs.origin == catalogID {
			related = append(related, rs)
		}
	}
	s.sessionsMu.Unlock()

	busy := false
	for _, rs := range related {
		rs.mu.Lock()
		switch rs.flow.State() {
		case checkout.StateProcessing, checkout.StateSuccess, checkout.StateClosed:
			busy = true
		default:
			rs.closed = true
		}
		closed := rs.closed
		rs.mu.Unlock()

		if closed {
			s.sessionsMu.Lock()
			delete(s.receipts, rs.id)
			s.sessionsMu.Unlock()
		}
	}
	return busy
}

// CloseCatalog закрывает сессию каталога вместе с её корзиной.
func (s *Service) CloseCatalog(id string) error {
	s.sessionsMu.Lock()
	cs, ok := s.catalogs[id]
	delete(s.catalogs, id)
	s.sessionsMu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	cs.cancel()
	return nil
}

func (s *Service) catalogSession(id string) (*catalogSession, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	cs, ok := s.catalogs[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cs, nil
}

// withCatalog выполняет действие над состоянием сессии под её блокировкой.
// Состояние возвращается и при ошибке действия.
func (s *Service) withCatalog(id string, fn func(*catalog.Store) error) (CatalogView, error) {
	cs, err := s.catalogSession(id)
	if err != nil {
		return CatalogView{}, err
	}
	cs.touch(s.now())

	cs.mu.Lock()
	defer cs.mu.Unlock()

	err = fn(cs.store)
	return cs.view(), err
}

// clearCart очищает корзину сессии каталога после успешной оплаты.
// Сессия к этому моменту могла быть закрыта.
func (s *Service) clearCart(id string) {
	if _, err := s.withCatalog(id, func(st *catalog.Store) error {
		st.ClearCart()
		return nil
	}); errors.Is(err, ErrSessionNotFound) {
		s.logger.Debug("catalog session closed before payment finished", zap.String("sessionID", id))
	}
}

// evictIdle закрывает сессии, к которым дольше sessionTTL не было обращений.
func (s *Service) evictIdle() {
	deadline := s.now().Add(-s.sessionTTL).UnixNano()

	s.sessionsMu.Lock()
	var cancels []func()
	for id, cs := range s.catalogs {
		if cs.lastSeen.Load() < deadline {
			delete(s.catalogs, id)
			delete(s.pending, id)
			cancels = append(cancels, cs.cancel)
		}
	}
	for id, rs := range s.receipts {
		if rs.lastSeen.Load() < deadline && !rs.processing.Load() {
			delete(s.receipts, id)
		}
	}
	for token, o := range s.origins {
		if o.at.UnixNano() < deadline {
			delete(s.origins, token)
		}
	}
	evicted := len(cancels)
	s.sessionsMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if evicted > 0 {
		s.logger.Info("idle catalog sessions evicted", zap.Int("count", evicted))
	}
}
