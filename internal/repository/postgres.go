// Package repository содержит локальное хранилище каталога товаров.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/inflight-sales/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrProductNotFound возвращается, если товара нет в хранилище.
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidQuantity возвращается при попытке списать неположительное количество.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// PostgresRepository хранит каталог товаров в PostgreSQL.
type PostgresRepository struct {
	pool    *pgxpool.Pool
	backoff func() retry.Backoff
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool: pool,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
		},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при конфликтах сериализации, дедлоках и обрывах соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// ListProducts возвращает все товары, упорядоченные по идентификатору.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, stock, price_usd::text, price_eur::text, price_gbp::text, image_url, category
		 FROM products
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var (
			id            int
			usd, eur, gbp string
			p             model.Product
			category      int
		)
		if err := rows.Scan(&id, &p.Name, &p.Stock, &usd, &eur, &gbp, &p.ImageURL, &category); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}

		p.ID = model.ProductID(id)
		p.Category = model.CategoryFromCode(category)
		if p.PriceUSD, err = decimal.NewFromString(usd); err != nil {
			return nil, fmt.Errorf("parse usd price of %d: %w", id, err)
		}
		if p.PriceEUR, err = decimal.NewFromString(eur); err != nil {
			return nil, fmt.Errorf("parse eur price of %d: %w", id, err)
		}
		if p.PriceGBP, err = decimal.NewFromString(gbp); err != nil {
			return nil, fmt.Errorf("parse gbp price of %d: %w", id, err)
		}

		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// ReplaceProducts заменяет каталог целиком в одной транзакции.
func (r *PostgresRepository) ReplaceProducts(ctx context.Context, products []model.Product) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return r.replaceProducts(ctx, products)
	})
}

func (r *PostgresRepository) replaceProducts(ctx context.Context, products []model.Product) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]int32, 0, len(products))
	batch := &pgx.Batch{}
	for _, p := range products {
		ids = append(ids, int32(p.ID))
		batch.Queue(
			`INSERT INTO products (id, name, stock, price_usd, price_eur, price_gbp, image_url, category, synced_at)
			 VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, now())
			 ON CONFLICT (id) DO UPDATE SET
			     name = EXCLUDED.name,
			     stock = EXCLUDED.stock,
			     price_usd = EXCLUDED.price_usd,
			     price_eur = EXCLUDED.price_eur,
			     price_gbp = EXCLUDED.price_gbp,
			     image_url = EXCLUDED.image_url,
			     category = EXCLUDED.category,
			     synced_at = EXCLUDED.synced_at`,
			int32(p.ID), p.Name, p.Stock,
			p.PriceUSD.String(), p.PriceEUR.String(), p.PriceGBP.String(),
			p.ImageURL, p.Category.Code(),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert products: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM products WHERE NOT (id = ANY($1))`, ids); err != nil {
		return fmt.Errorf("delete stale products: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// DecrementStock уменьшает остаток товара на quantity, не опуская его ниже нуля.
func (r *PostgresRepository) DecrementStock(ctx context.Context, id model.ProductID, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	return r.withRetry(ctx, func(ctx context.Context) error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE products SET stock = GREATEST(stock - $2, 0) WHERE id = $1`,
			int32(id), quantity,
		)
		if err != nil {
			return fmt.Errorf("update stock: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %d", ErrProductNotFound, id)
		}
		return nil
	})
}
