// internal/adapters/out/gcs/product_repository_gcs.go
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	productdom "storefront/internal/domain/product"
)

// ProductReaderGCS reads a catalog export: one JSON object per product at
// gs://<bucket>/<prefix><productId>.json.
type ProductReaderGCS struct {
	Client *storage.Client
	Bucket string
	Prefix string
}

const (
	defaultProductPrefix = "products/"
	maxProductObjectSize = 1 << 20
)

func NewProductReaderGCS(client *storage.Client, bucket, prefix string) *ProductReaderGCS {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = defaultProductPrefix
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return &ProductReaderGCS{
		Client: client,
		Bucket: strings.TrimSpace(bucket),
		Prefix: strings.TrimLeft(p, "/"),
	}
}

func (r *ProductReaderGCS) objectPath(id string) string {
	return r.Prefix + sanitizePathSegment(id) + ".json"
}

// Get returns (Product{}, false, nil) when the object does not exist.
func (r *ProductReaderGCS) Get(ctx context.Context, id string) (productdom.Product, bool, error) {
	if r == nil || r.Client == nil {
		return productdom.Product{}, false, errors.New("ProductReaderGCS: nil storage client")
	}
	if r.Bucket == "" {
		return productdom.Product{}, false, errors.New("ProductReaderGCS: bucket is empty")
	}
	id = strings.TrimSpace(id)
	if sanitizePathSegment(id) == "" {
		return productdom.Product{}, false, nil
	}

	rd, err := r.Client.Bucket(r.Bucket).Object(r.objectPath(id)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return productdom.Product{}, false, nil
		}
		return productdom.Product{}, false, err
	}
	defer rd.Close()

	b, err := io.ReadAll(io.LimitReader(rd, maxProductObjectSize))
	if err != nil {
		return productdom.Product{}, false, err
	}

	var p productdom.Product
	if err := json.Unmarshal(b, &p); err != nil {
		return productdom.Product{}, false, fmt.Errorf("ProductReaderGCS: decode gs://%s/%s: %w", r.Bucket, r.objectPath(id), err)
	}
	// object name is the source of truth
	p.ID = id
	if p.Stock < 0 {
		p.Stock = 0
	}
	return p, true, nil
}
