package product

import "context"

// Reader is the external product collaborator.
//
// Get must return (Product{}, false, nil) for unknown ids rather than an error;
// errors are reserved for transport failures.
type Reader interface {
	Get(ctx context.Context, id string) (Product, bool, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, id string) (Product, bool, error)

func (f ReaderFunc) Get(ctx context.Context, id string) (Product, bool, error) {
	return f(ctx, id)
}

// BatchReader is implemented by readers that can resolve several ids in one round trip.
// Unknown ids are absent from the returned map.
type BatchReader interface {
	GetMany(ctx context.Context, ids []string) (map[string]Product, error)
}
