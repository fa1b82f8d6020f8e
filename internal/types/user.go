package types

import (
	"time"

	"github.com/google/uuid"
)

// User is one row per distinct caller/chatter. Both identity keys are
// optional and unique; at least one must be set at creation.
type User struct {
	ID                uuid.UUID `json:"id"`
	PhoneNumber       *string   `json:"phone_number,omitempty"`
	UserIdentifier    *string   `json:"user_identifier,omitempty"`
	Name              *string   `json:"name,omitempty"`
	Age               *int      `json:"age,omitempty"`
	Location          *string   `json:"location,omitempty"`
	InsuranceInterest *string   `json:"insurance_interest,omitempty"`
	LastSummary       *string   `json:"last_summary,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// UpdateProfileParams defines the fields allowed for profile updates.
// Use pointers for optional fields, allowing partial updates: a nil field
// is left untouched, so previously collected values are never cleared.
type UpdateProfileParams struct {
	Name              *string
	Age               *int
	Location          *string
	InsuranceInterest *string
	LastSummary       *string
}

// IsZero reports whether no field is set, i.e. the update would be a no-op.
func (p UpdateProfileParams) IsZero() bool {
	return p.Name == nil && p.Age == nil && p.Location == nil &&
		p.InsuranceInterest == nil && p.LastSummary == nil
}
