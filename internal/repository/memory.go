package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mmeshcher/inflight-sales/internal/model"
)

// MemoryRepository хранит каталог в памяти процесса. Используется, когда БД не настроена.
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[model.ProductID]model.Product
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{products: make(map[model.ProductID]model.Product)}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error { return nil }

// ListProducts возвращает все товары, упорядоченные по идентификатору.
func (r *MemoryRepository) ListProducts(ctx context.Context) ([]model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]model.Product, 0, len(r.products))
	for _, p := range r.products {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// ReplaceProducts заменяет каталог целиком.
func (r *MemoryRepository) ReplaceProducts(ctx context.Context, products []model.Product) error {
	next := make(map[model.ProductID]model.Product, len(products))
	for _, p := range products {
		next[p.ID] = p
	}

	r.mu.Lock()
	r.products = next
	r.mu.Unlock()
	return nil
}

// DecrementStock уменьшает остаток товара на quantity, не опуская его ниже нуля.
func (r *MemoryRepository) DecrementStock(ctx context.Context, id model.ProductID, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	p.Stock = max(p.Stock-quantity, 0)
	r.products[id] = p
	return nil
}
