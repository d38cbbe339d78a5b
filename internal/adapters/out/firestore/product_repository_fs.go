// internal/adapters/out/firestore/product_repository_fs.go
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	productdom "storefront/internal/domain/product"
)

// ProductReaderFS reads the product projection from the "products" collection.
type ProductReaderFS struct {
	Client *firestore.Client
}

func NewProductReaderFS(client *firestore.Client) *ProductReaderFS {
	return &ProductReaderFS{Client: client}
}

func (r *ProductReaderFS) col() *firestore.CollectionRef {
	return r.Client.Collection("products")
}

// Get returns (Product{}, false, nil) for unknown ids.
func (r *ProductReaderFS) Get(ctx context.Context, id string) (productdom.Product, bool, error) {
	if r == nil || r.Client == nil {
		return productdom.Product{}, false, errors.New("product_reader_fs: firestore client is nil")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return productdom.Product{}, false, nil
	}

	snap, err := r.col().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return productdom.Product{}, false, nil
		}
		return productdom.Product{}, false, err
	}

	p, err := docToProduct(snap)
	if err != nil {
		return productdom.Product{}, false, err
	}
	return p, true, nil
}

// GetMany fetches ids in one round trip (Client.GetAll). Unknown ids are absent from the result.
func (r *ProductReaderFS) GetMany(ctx context.Context, ids []string) (map[string]productdom.Product, error) {
	if r == nil || r.Client == nil {
		return nil, errors.New("product_reader_fs: firestore client is nil")
	}

	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			refs = append(refs, r.col().Doc(id))
		}
	}
	out := make(map[string]productdom.Product, len(refs))
	if len(refs) == 0 {
		return out, nil
	}

	snaps, err := r.Client.GetAll(ctx, refs)
	if err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		p, err := docToProduct(snap)
		if err != nil {
			continue
		}
		out[p.ID] = p
	}
	return out, nil
}

func docToProduct(snap *firestore.DocumentSnapshot) (productdom.Product, error) {
	raw := snap.Data()
	if raw == nil {
		return productdom.Product{}, fmt.Errorf("product_reader_fs: empty document %s", snap.Ref.ID)
	}

	attrs := asStringMap(raw["attributes"])
	p := productdom.Product{
		ID:            snap.Ref.ID,
		Name:          strings.TrimSpace(asString(raw["name"])),
		ImageURL:      strings.TrimSpace(asString(raw["imageUrl"])),
		Price:         asInt64(raw["price"]),
		DiscountPrice: asInt64Ptr(raw["discountPrice"]),
		Stock:         asInt(raw["stock"]),
		Attributes: productdom.Attributes{
			FabricType: attrs["fabricType"],
			Color:      attrs["color"],
			Size:       attrs["size"],
		},
	}
	if p.Stock < 0 {
		p.Stock = 0
	}
	return p, nil
}
