// internal/adapters/out/db/product_repository_pg.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	productdom "storefront/internal/domain/product"
)

// ProductReaderPG reads the product projection from Postgres.
//
//	products(id TEXT PRIMARY KEY, name TEXT, image_url TEXT, price BIGINT, discount_price BIGINT NULL,
//	         stock INT, fabric_type TEXT, color TEXT, size TEXT)
type ProductReaderPG struct {
	DB *sql.DB
}

func NewProductReaderPG(db *sql.DB) *ProductReaderPG {
	return &ProductReaderPG{DB: db}
}

const productColumns = `
  id,
  COALESCE(name, ''),
  COALESCE(image_url, ''),
  price,
  discount_price,
  stock,
  COALESCE(fabric_type, ''),
  COALESCE(color, ''),
  COALESCE(size, '')`

// Get returns (Product{}, false, nil) when no row matches.
func (r *ProductReaderPG) Get(ctx context.Context, id string) (productdom.Product, bool, error) {
	if r == nil || r.DB == nil {
		return productdom.Product{}, false, errors.New("product_reader_pg: db is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return productdom.Product{}, false, nil
	}

	q := `SELECT` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(r.DB.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return productdom.Product{}, false, nil
	}
	if err != nil {
		return productdom.Product{}, false, err
	}
	return p, true, nil
}

// GetMany resolves ids with one `id = ANY($1)` query.
func (r *ProductReaderPG) GetMany(ctx context.Context, ids []string) (map[string]productdom.Product, error) {
	if r == nil || r.DB == nil {
		return nil, errors.New("product_reader_pg: db is nil")
	}
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	out := make(map[string]productdom.Product, len(clean))
	if len(clean) == 0 {
		return out, nil
	}

	q := `SELECT` + productColumns + ` FROM products WHERE id = ANY($1)`
	rows, err := r.DB.QueryContext(ctx, q, pq.Array(clean))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(s rowScanner) (productdom.Product, error) {
	var (
		p        productdom.Product
		discount sql.NullInt64
	)
	if err := s.Scan(
		&p.ID,
		&p.Name,
		&p.ImageURL,
		&p.Price,
		&discount,
		&p.Stock,
		&p.Attributes.FabricType,
		&p.Attributes.Color,
		&p.Attributes.Size,
	); err != nil {
		return productdom.Product{}, err
	}
	if discount.Valid {
		v := discount.Int64
		p.DiscountPrice = &v
	}
	if p.Stock < 0 {
		p.Stock = 0
	}
	return p, nil
}

// Probe checks that the products table is queryable.
func (r *ProductReaderPG) Probe(ctx context.Context) error {
	if r == nil || r.DB == nil {
		return errors.New("product_reader_pg: db is nil")
	}
	_, err := r.DB.ExecContext(ctx, `SELECT 1 FROM products LIMIT 1`)
	if IsUndefinedTable(err) {
		return fmt.Errorf("product_reader_pg: products table missing: %w", err)
	}
	return err
}

// IsUndefinedTable reports SQLSTATE 42P01.
func IsUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}
