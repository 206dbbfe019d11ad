package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrCodeConflict = errors.New("code conflict")
)

// CatalogTx is the write side of the catalog inside one transaction.
// Upserts are find-or-create by code: an existing incompatible definition
// under the same code fails with ErrCodeConflict.
type CatalogTx interface {
	UpsertParameter(ctx context.Context, p Parameter) (Parameter, error)
	UpsertFormula(ctx context.Context, f Formula) (Formula, error)
	UpsertResource(ctx context.Context, r Resource) (Resource, error)
	FindResourceByCode(ctx context.Context, code string, typ ResourceType) (*Resource, error)
	CreateTemplate(ctx context.Context, t *Template) (int64, error)
}
