// Package service реализует бизнес-логику сервиса бортовых продаж: каталог,
// сессии страниц каталога и чека.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mmeshcher/inflight-sales/internal/cart"
	"github.com/mmeshcher/inflight-sales/internal/events"
	"github.com/mmeshcher/inflight-sales/internal/model"
)

var (
	// ErrSyncUnavailable возвращается, если удалённый каталог не настроен.
	ErrSyncUnavailable = errors.New("remote catalog not configured")
	// ErrSessionNotFound возвращается, если сессия не найдена или закрыта.
	ErrSessionNotFound = errors.New("session not found")
)

const (
	defaultPaymentDelay = 2 * time.Second
	defaultSessionTTL   = 2 * time.Hour
	stockUpdateTimeout  = 10 * time.Second
	syncRetryInterval   = 30 * time.Second
	janitorInterval     = time.Minute
)

// Repository описывает контракт локального хранилища каталога.
type Repository interface {
	Close() error
	ListProducts(ctx context.Context) ([]model.Product, error)
	ReplaceProducts(ctx context.Context, products []model.Product) error
	DecrementStock(ctx context.Context, id model.ProductID, quantity int) error
}

// CatalogClient получает каталог из удалённого источника.
type CatalogClient interface {
	GetProducts(ctx context.Context) ([]model.Product, error)
}

// HandoffStore передаёт корзину между страницами каталога и чека.
type HandoffStore interface {
	Put(ctx context.Context, h cart.Handoff) (string, error)
	Take(ctx context.Context, token string) (cart.Handoff, error)
}

// Snapshot описывает версию каталога, доставляемую подписчикам.
type Snapshot struct {
	Version  uint64
	Products []model.Product
}

// origin связывает токен передачи с сессией каталога, из которой он выдан.
type origin struct {
	catalogID string
	at        time.Time
}

// Options содержит необязательные параметры сервиса.
type Options struct {
	PaymentDelay time.Duration
	SessionTTL   time.Duration
}

// Service содержит бизнес-логику сервиса бортовых продаж.
type Service struct {
	repo      Repository
	client    CatalogClient
	handoffs  HandoffStore
	publisher events.Publisher
	logger    *zap.Logger

	paymentDelay time.Duration
	sessionTTL   time.Duration
	now          func() time.Time

	sfg    singleflight.Group
	synced atomic.Bool

	// deliverMu упорядочивает выдачу версий каталога и их доставку подписчикам.
	deliverMu sync.Mutex
	mu        sync.Mutex
	latest    *Snapshot
	version   uint64
	nextObs   uint64
	observers map[uint64]func(Snapshot)

	sessionsMu sync.Mutex
	catalogs   map[string]*catalogSession
	receipts   map[string]*receiptSession
	origins    map[string]origin
	// pending хранит последний выданный токен передачи каждой сессии каталога.
	pending map[string]string

	processing sync.WaitGroup
}

// NewService создаёт сервис. client может быть nil, тогда синхронизация недоступна.
func NewService(repo Repository, client CatalogClient, handoffs HandoffStore, publisher events.Publisher, logger *zap.Logger, opts Options) *Service {
	if opts.PaymentDelay <= 0 {
		opts.PaymentDelay = defaultPaymentDelay
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:         repo,
		client:       client,
		handoffs:     handoffs,
		publisher:    publisher,
		logger:       logger,
		paymentDelay: opts.PaymentDelay,
		sessionTTL:   opts.SessionTTL,
		now:          time.Now,
		observers:    make(map[uint64]func(Snapshot)),
		catalogs:     make(map[string]*catalogSession),
		receipts:     make(map[string]*receiptSession),
		origins:      make(map[string]origin),
		pending:      make(map[string]string),
	}
}

// Close дожидается завершения обрабатываемых платежей и закрывает ресурсы сервиса.
func (s *Service) Close() error {
	s.processing.Wait()

	var errs []error
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close repository: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Products возвращает текущий каталог из локального хранилища.
func (s *Service) Products(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx)
}

// Synced сообщает, была ли успешная синхронизация в этом экземпляре сервиса.
func (s *Service) Synced() bool {
	return s.synced.Load()
}

// Sync загружает удалённый каталог и целиком сохраняет его локально.
// Одновременные вызовы разделяют одну загрузку, которая не отменяется
// вместе с контекстом первого вызвавшего.
func (s *Service) Sync(ctx context.Context) error {
	if s.client == nil {
		return ErrSyncUnavailable
	}

	ch := s.sfg.DoChan("sync", func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), syncTimeout)
		defer cancel()

		products, err := s.client.GetProducts(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch remote catalog: %w", err)
		}
		if err := s.repo.ReplaceProducts(ctx, products); err != nil {
			return nil, fmt.Errorf("store catalog: %w", err)
		}
		s.synced.Store(true)
		s.logger.Info("products synced", zap.Int("count", len(products)))

		if err := s.refresh(ctx); err != nil {
			s.logger.Warn("catalog refresh after sync failed", zap.Error(err))
		}
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SyncIfNeeded синхронизирует каталог, если это ещё не удалось сделать.
// Ошибка синхронизации только журналируется: каталог остаётся доступен из локального хранилища.
func (s *Service) SyncIfNeeded(ctx context.Context) {
	if s.synced.Load() {
		return
	}
	if err := s.Sync(ctx); err != nil && !errors.Is(err, ErrSyncUnavailable) {
		s.logger.Error("failed to sync products", zap.Error(err))
	}
}

// DecrementStock списывает проданное количество товара и рассылает обновлённый каталог.
func (s *Service) DecrementStock(ctx context.Context, id model.ProductID, quantity int) error {
	if err := s.repo.DecrementStock(ctx, id, quantity); err != nil {
		return err
	}
	if err := s.refresh(ctx); err != nil {
		s.logger.Warn("catalog refresh after stock update failed", zap.Error(err), zap.Int("productID", int(id)))
	}
	return nil
}

// Subscribe регистрирует подписчика каталога. Текущая версия доставляется сразу,
// последующие после каждой синхронизации или списания остатков, строго по порядку.
// Подписка действует и при ошибке загрузки, она возвращается вторым значением.
func (s *Service) Subscribe(ctx context.Context, fn func(Snapshot)) (func(), error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.nextObs++
	id := s.nextObs
	s.observers[id] = fn
	latest := s.latest
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}

	if latest == nil {
		snap, err := s.load(ctx)
		if err != nil {
			return cancel, err
		}
		latest = &snap
	}

	fn(*latest)
	return cancel, nil
}

// refresh перечитывает каталог и доставляет новую версию всем подписчикам.
func (s *Service) refresh(ctx context.Context) error {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	snap, err := s.load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	observers := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
	return nil
}

// load читает каталог и присваивает ему следующую версию. Вызывается под deliverMu.
func (s *Service) load(ctx context.Context) (Snapshot, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list products: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	snap := Snapshot{Version: s.version, Products: products}
	s.latest = &snap
	return snap, nil
}

// StartBackground запускает фоновую синхронизацию каталога и очистку простаивающих сессий.
// Возвращает управление после отмены ctx.
func (s *Service) StartBackground(ctx context.Context) {
	s.SyncIfNeeded(ctx)

	syncTicker := time.NewTicker(syncRetryInterval)
	defer syncTicker.Stop()
	janitor := time.NewTicker(janitorInterval)
	defer janitor.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-syncTicker.C:
			s.SyncIfNeeded(ctx)
		case <-janitor.C:
			s.evictIdle()
		}
	}
}
