// internal/app/features/principals/types.go
package principals

import "github.com/dalemusser/portalauthz/internal/domain/models"

// Every mutation body may carry expected_version. Omitted (or 0) means
// "whatever is current", and the handler retries on Conflict.

type rolesRequest struct {
	Roles           []string `json:"roles"`
	ExpectedVersion int64    `json:"expected_version,omitempty"`
}

type statusRequest struct {
	Status          string `json:"status"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
}

type overridesRequest struct {
	Overrides       []string `json:"overrides"`
	ExpectedVersion int64    `json:"expected_version,omitempty"`
}

type membershipsRequest struct {
	Memberships     []models.OrgMembership `json:"memberships"`
	ExpectedVersion int64                  `json:"expected_version,omitempty"`
}

type approveRequest struct {
	Role            string `json:"role,omitempty"`
	Reason          string `json:"reason,omitempty"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
}

type denyRequest struct {
	Reason          string `json:"reason,omitempty"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
}

type listResponse struct {
	Principals []models.Principal `json:"principals"`
	Count      int                `json:"count"`
}
