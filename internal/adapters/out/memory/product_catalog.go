// internal/adapters/out/memory/product_catalog.go
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	productdom "storefront/internal/domain/product"
)

// Catalog is an in-process product collaborator (PRODUCT_SOURCE=memory).
type Catalog struct {
	mu       sync.RWMutex
	products map[string]productdom.Product
}

func NewCatalog(products ...productdom.Product) *Catalog {
	c := &Catalog{products: map[string]productdom.Product{}}
	for _, p := range products {
		c.Put(p)
	}
	return c
}

// LoadCatalogFile reads a JSON array of products.
func LoadCatalogFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("memory.catalog: read %s: %w", path, err)
	}
	var list []productdom.Product
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("memory.catalog: decode %s: %w", path, err)
	}
	c := NewCatalog()
	for _, p := range list {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("memory.catalog: product %q: %w", p.ID, err)
		}
		c.Put(p)
	}
	return c, nil
}

func (c *Catalog) Get(_ context.Context, id string) (productdom.Product, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[strings.TrimSpace(id)]
	return p, ok, nil
}

// Put adds or replaces a product.
func (c *Catalog) Put(p productdom.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[strings.TrimSpace(p.ID)] = p
}

// SetStock updates the stock of a known product.
func (c *Catalog) SetStock(id string, stock int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[strings.TrimSpace(id)]
	if !ok {
		return false
	}
	p.Stock = stock
	c.products[p.ID] = p
	return true
}
