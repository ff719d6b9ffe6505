package tenant

import (
	"time"
)

// Tenant is an isolated customer organization.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// IsActive reports whether tenant-space roles may be created for the tenant.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}
