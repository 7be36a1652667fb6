// internal/domain/models/principal.go
package models

import "time"

// Principal statuses.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusRejected  = "rejected"
)

// IsValidStatus reports whether s is one of the known principal statuses.
func IsValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusActive, StatusSuspended, StatusRejected:
		return true
	}
	return false
}

// IsEntitledStatus reports whether a principal with status s may hold
// capabilities beyond the anonymous defaults.
func IsEntitledStatus(s string) bool {
	return s == StatusApproved || s == StatusActive
}

// OrgMembership is a principal's role within one organization.
type OrgMembership struct {
	OrganizationID string `bson:"organization_id" json:"organization_id"`
	Role           string `bson:"role" json:"role"`
}

// Principal is the authoritative permission record for one identity.
//
// NOTE:
//   - Role is kept for older readers and always equals Roles[0] when Roles
//     is non-empty. Writers set Roles and call SyncPrimaryRole.
//   - Version is bumped on every write and checked by the store (optimistic
//     concurrency).
type Principal struct {
	ID                      string          `bson:"_id" json:"id"`
	Email                   string          `bson:"email" json:"email"` // lowercase
	DisplayName             string          `bson:"display_name,omitempty" json:"display_name,omitempty"`
	Role                    string          `bson:"role,omitempty" json:"role,omitempty"`
	Roles                   []string        `bson:"roles,omitempty" json:"roles"`
	Status                  string          `bson:"status" json:"status"`
	PermissionOverrides     []string        `bson:"permission_overrides,omitempty" json:"permission_overrides,omitempty"`
	OrganizationMemberships []OrgMembership `bson:"organization_memberships,omitempty" json:"organization_memberships,omitempty"`
	Version                 int64           `bson:"version" json:"version"`

	// LegacyRoleOnly is set by SyncPrimaryRole when Roles had to be filled
	// from the single legacy Role field. Not persisted.
	LegacyRoleOnly bool `bson:"-" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// SyncPrimaryRole makes Role mirror Roles[0]. A record that only carries the
// legacy Role field gets Roles = [Role].
func (p *Principal) SyncPrimaryRole() {
	if len(p.Roles) == 0 && p.Role != "" {
		p.Roles = []string{p.Role}
		p.LegacyRoleOnly = true
	}
	if len(p.Roles) > 0 {
		p.Role = p.Roles[0]
	} else {
		p.Role = ""
	}
}

// DefaultRoles is SyncPrimaryRole plus the rule that an approved or active
// principal always holds a role: with none stored it gets baseline.
func (p *Principal) DefaultRoles(baseline string) {
	p.SyncPrimaryRole()
	if len(p.Roles) == 0 && baseline != "" && IsEntitledStatus(p.Status) {
		p.Roles = []string{baseline}
		p.Role = baseline
	}
}

// OrgRole returns the principal's role within orgID, if any.
func (p Principal) OrgRole(orgID string) (string, bool) {
	if orgID == "" {
		return "", false
	}
	for _, m := range p.OrganizationMemberships {
		if m.OrganizationID == orgID {
			return m.Role, true
		}
	}
	return "", false
}

// Clone returns a deep copy so callers can build an "after" snapshot without
// aliasing the "before" slices.
func (p Principal) Clone() Principal {
	c := p
	c.Roles = append([]string(nil), p.Roles...)
	c.PermissionOverrides = append([]string(nil), p.PermissionOverrides...)
	c.OrganizationMemberships = append([]OrgMembership(nil), p.OrganizationMemberships...)
	return c
}
