package customer

import (
	"context"
	"errors"
)

// Source fetches raw, already JSON-decoded customer payloads.
type Source interface {
	FetchCustomers(ctx context.Context) (any, error)
	FetchCustomer(ctx context.Context, id ID) (any, error)
}

// Loader fetches from a Source and normalizes the result. A fresh Loader call
// is made for every page load; nothing is cached.
type Loader struct {
	source Source
}

func NewLoader(source Source) *Loader {
	return &Loader{source: source}
}

// LoadCollection fetches and normalizes every customer. Any record that fails
// normalization fails the whole collection.
func (l *Loader) LoadCollection(ctx context.Context) ([]Record, error) {
	if l == nil || l.source == nil {
		return nil, errors.New("customer source not configured")
	}
	raw, err := l.source.FetchCustomers(ctx)
	if err != nil {
		return nil, err
	}
	return NormalizeCollection(raw)
}

// LoadOne fetches and normalizes a single customer.
func (l *Loader) LoadOne(ctx context.Context, id ID) (Record, error) {
	if l == nil || l.source == nil {
		return Record{}, errors.New("customer source not configured")
	}
	raw, err := l.source.FetchCustomer(ctx, id)
	if err != nil {
		return Record{}, err
	}
	return NormalizeValue(raw)
}

// IsShapeError reports whether err (or anything it wraps) is a ShapeError.
func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}
