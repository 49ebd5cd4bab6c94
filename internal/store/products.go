package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tricto/go-slot-store/internal/database"
	"github.com/tricto/go-slot-store/internal/models"
)

// ProductStore owns the products table. The fulfillment workflow mutates
// quantity exclusively through GetProduct/UpdateProduct.
type ProductStore struct {
	DB *sql.DB
}

const productColumns = "id, category_id, name, price, quantity, image_url, created_at, updated_at, version"

func scanProduct(row interface{ Scan(...any) error }) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
		&product.ID,
		&product.CategoryID,
		&product.Name,
		&product.Price,
		&product.Quantity,
		&product.ImageURL,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *ProductStore) CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	query := `
		INSERT INTO products (category_id, name, price, quantity, image_url, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	product, err := scanProduct(s.DB.QueryRowContext(ctx, query,
		p.CategoryID, p.Name, p.Price, p.Quantity, p.ImageURL))
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func (s *ProductStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// UpdateProduct writes the mutable product fields guarded by the version
// column. A stale version yields ErrOptimisticLockFailed, a missing row
// ErrProductNotFound.
func (s *ProductStore) UpdateProduct(ctx context.Context, id int64, p *models.Product) (*models.Product, error) {
	query := `
		UPDATE products
		SET category_id = $2, name = $3, price = $4, quantity = $5, image_url = $6,
		    updated_at = NOW(), version = version + 1
		WHERE id = $1 AND version = $7
		RETURNING ` + productColumns

	product, err := scanProduct(s.DB.QueryRowContext(ctx, query,
		id, p.CategoryID, p.Name, p.Price, p.Quantity, p.ImageURL, p.Version))
	if err != nil {
		if err == sql.ErrNoRows {
			var exists bool
			if checkErr := s.DB.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); checkErr != nil {
				return nil, fmt.Errorf("check product exists: %w", checkErr)
			}
			if !exists {
				return nil, database.ErrProductNotFound
			}
			return nil, database.ErrOptimisticLockFailed
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

func (s *ProductStore) ListProducts(ctx context.Context, page, pageSize int) (*OffsetPage, error) {
	var total int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.DB.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}
