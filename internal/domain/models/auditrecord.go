// internal/domain/models/auditrecord.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Audit operations.
const (
	OpSetRoles         = "set_roles"
	OpSetStatus        = "set_status"
	OpSetOverrides     = "set_overrides"
	OpSetMemberships   = "set_memberships"
	OpApprove          = "approve"
	OpDeny             = "deny"
	OpBootstrap        = "bootstrap"
	OpSelfRegistration = "self_registration"
	OpRollback         = "rollback"
)

// PrincipalSnapshot captures the mutable authorization fields of a principal.
type PrincipalSnapshot struct {
	Roles                   []string        `bson:"roles,omitempty" json:"roles,omitempty"`
	Status                  string          `bson:"status,omitempty" json:"status,omitempty"`
	PermissionOverrides     []string        `bson:"permission_overrides,omitempty" json:"permission_overrides,omitempty"`
	OrganizationMemberships []OrgMembership `bson:"organization_memberships,omitempty" json:"organization_memberships,omitempty"`
	Version                 int64           `bson:"version" json:"version"`
}

// SnapshotOf extracts a snapshot of p's authorization fields.
func SnapshotOf(p Principal) *PrincipalSnapshot {
	c := p.Clone()
	return &PrincipalSnapshot{
		Roles:                   c.Roles,
		Status:                  c.Status,
		PermissionOverrides:     c.PermissionOverrides,
		OrganizationMemberships: c.OrganizationMemberships,
		Version:                 c.Version,
	}
}

// AuditRecord is one append-only entry per Administrative Mutation API call.
type AuditRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`

	Operation string `bson:"operation" json:"operation"`
	ActorID   string `bson:"actor_id" json:"actor_id"`
	TargetID  string `bson:"target_id" json:"target_id"`

	Before *PrincipalSnapshot `bson:"before,omitempty" json:"before,omitempty"`
	After  *PrincipalSnapshot `bson:"after,omitempty" json:"after,omitempty"`

	// Outcome
	Success       bool   `bson:"success" json:"success"`
	FailureKind   string `bson:"failure_kind,omitempty" json:"failure_kind,omitempty"`
	FailureReason string `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`

	Bootstrap bool   `bson:"bootstrap,omitempty" json:"bootstrap,omitempty"`
	Note      string `bson:"note,omitempty" json:"note,omitempty"` // operator-supplied, sanitized
}
