package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusmarket/internal/logger"
	"github.com/campusmarket/internal/model"
)

// ProductRepository is a read-only view of the catalog, used to infer the
// seller when a buyer contacts a listing.
type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	defer logger.DeferLogDuration("product.GetByID", time.Now())()
	p := &model.Product{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, seller_id, title FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.SellerID, &p.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("productRepo.GetByID: %w", err)
	}
	return p, nil
}
