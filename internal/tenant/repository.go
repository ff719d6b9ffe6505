package tenant

import (
	"context"
	"errors"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantExists   = errors.New("tenant already exists")
	ErrInvalidTenant  = errors.New("invalid tenant")
)

// Repository reads tenants. The access control core only ever looks tenants up.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Tenant, error)
}

// Manager is the write side used by tenant provisioning.
type Manager interface {
	Repository
	Create(ctx context.Context, t *Tenant) error
	SetStatus(ctx context.Context, id, status string) error
}
