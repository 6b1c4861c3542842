// Package store is the boundary to the remote relational store. Every table is
// read and written through a typed row (DTO); untyped data never leaves this
// package.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the targeted row does not exist remotely.
	ErrNotFound = errors.New("store: row not found")
	// ErrDuplicate indicates a unique constraint rejected the write.
	ErrDuplicate = errors.New("store: duplicate row")
	// ErrUnknownColumn indicates a filter or patch named a column outside the schema.
	ErrUnknownColumn = errors.New("store: unknown column")
)

// Filter restricts Select to rows whose columns equal the given values.
type Filter map[string]any

// Patch lists column updates applied by Update.
type Patch map[string]any

// Table is row-level CRUD over one remote table.
type Table[R any] interface {
	Select(ctx context.Context, filter Filter) ([]R, error)
	Insert(ctx context.Context, row R) (string, error)
	Update(ctx context.Context, id string, patch Patch) error
	Delete(ctx context.Context, id string) error
}

// Record is implemented by row types so generic tables can key and patch them
// without reflection.
type Record[R any] interface {
	RowID() string
	WithID(id string) R
	Apply(patch Patch) (R, error)
}
