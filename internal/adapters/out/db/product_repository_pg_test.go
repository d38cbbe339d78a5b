// internal/adapters/out/db/product_repository_pg_test.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
)

type fakeRow struct {
	vals []any
}

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r.vals) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.vals[i].(string)
		case *int64:
			*p = r.vals[i].(int64)
		case *int:
			*p = r.vals[i].(int)
		case *sql.NullInt64:
			if r.vals[i] == nil {
				*p = sql.NullInt64{}
			} else {
				*p = sql.NullInt64{Int64: r.vals[i].(int64), Valid: true}
			}
		default:
			return errors.New("unexpected scan target")
		}
	}
	return nil
}

func TestScanProduct(t *testing.T) {
	p, err := scanProduct(fakeRow{vals: []any{"P1", "Tee", "", int64(1000), int64(800), -3, "cotton", "red", "M"}})
	if err != nil {
		t.Fatalf("scanProduct: %v", err)
	}
	if p.DiscountPrice == nil || *p.DiscountPrice != 800 || p.EffectivePrice() != 800 {
		t.Fatalf("discount = %v", p.DiscountPrice)
	}
	if p.Stock != 0 {
		t.Fatalf("negative stock should read as 0, got %d", p.Stock)
	}
	if p.Attributes.Color != "red" || p.Attributes.FabricType != "cotton" {
		t.Fatalf("attributes = %+v", p.Attributes)
	}

	p, err = scanProduct(fakeRow{vals: []any{"P2", "", "", int64(500), nil, 2, "", "", ""}})
	if err != nil || p.DiscountPrice != nil {
		t.Fatalf("no discount = %+v %v", p, err)
	}
}

func TestIsUndefinedTable(t *testing.T) {
	if !IsUndefinedTable(&pq.Error{Code: "42P01"}) {
		t.Fatalf("42P01 not recognized")
	}
	if IsUndefinedTable(errors.New("other")) || IsUndefinedTable(nil) {
		t.Fatalf("false positive")
	}
}

// TestProductReaderPG_Live runs against PRODUCT_DATABASE_URL when set.
func TestProductReaderPG_Live(t *testing.T) {
	dsn := os.Getenv("PRODUCT_DATABASE_URL")
	if dsn == "" {
		t.Skip("PRODUCT_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	// TEMP tables live on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TEMP TABLE products(
  id TEXT PRIMARY KEY, name TEXT, image_url TEXT, price BIGINT NOT NULL, discount_price BIGINT NULL,
  stock INT NOT NULL, fabric_type TEXT, color TEXT, size TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO products(id, name, price, discount_price, stock) VALUES
  ('P1', 'Tee', 1000, 800, 3), ('P2', NULL, 500, NULL, 0)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r := NewProductReaderPG(db)
	if err := r.Probe(ctx); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	p, ok, err := r.Get(ctx, "P1")
	if err != nil || !ok || p.EffectivePrice() != 800 {
		t.Fatalf("Get(P1) = %+v %t %v", p, ok, err)
	}
	if _, ok, err := r.Get(ctx, "P9"); err != nil || ok {
		t.Fatalf("Get(P9) = %t %v", ok, err)
	}
	m, err := r.GetMany(ctx, []string{"P1", "P2", "P9"})
	if err != nil || len(m) != 2 {
		t.Fatalf("GetMany = %v %v", m, err)
	}
}
