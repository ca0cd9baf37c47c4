package connection

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehrsync/ehrsync/internal/domain/provider"
)

// Connection is a configured pairing of a vendor deployment and one patient:
// endpoint, credential, subject identifier, and optional tenant routing.
// The sync engine reads connections; the account system owns their
// lifecycle.
type Connection struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Vendor      provider.Vendor `db:"vendor" json:"vendor"`
	BaseURL     string          `db:"base_url" json:"base_url"`
	BearerToken string          `db:"bearer_token" json:"-"`
	PatientID   string          `db:"patient_id" json:"patient_id"`
	TenantID    *string         `db:"tenant_id" json:"tenant_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Tenant returns the tenant identifier or empty when the connection is not
// tenant-routed.
func (c *Connection) Tenant() string {
	if c.TenantID == nil {
		return ""
	}
	return *c.TenantID
}
