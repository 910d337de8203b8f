package types

import (
	"fmt"

	"github.com/google/uuid"
)

// TenantKey scopes an order to the user and organization that own the
// marketplace connection. Both components participate in the idempotency key.
type TenantKey struct {
	UserID         uuid.UUID `json:"user_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
}

// IsZero reports whether neither component is set.
func (t TenantKey) IsZero() bool {
	return t.UserID == uuid.Nil && t.OrganizationID == uuid.Nil
}

// Validate requires both scoping components.
func (t TenantKey) Validate() error {
	if t.UserID == uuid.Nil {
		return fmt.Errorf("tenant key: user id required")
	}
	if t.OrganizationID == uuid.Nil {
		return fmt.Errorf("tenant key: organization id required")
	}
	return nil
}

// String renders the key for log fields and cache keys.
func (t TenantKey) String() string {
	return fmt.Sprintf("%s/%s", t.UserID, t.OrganizationID)
}
