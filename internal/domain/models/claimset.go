// internal/domain/models/claimset.go
package models

import "time"

// ClaimSet is the projection of a Principal carried by an authenticated
// credential. It is derived data: the Principal in the store is authoritative.
type ClaimSet struct {
	PrincipalID  string    `json:"principal_id"`
	Roles        []string  `json:"roles"`
	Capabilities []string  `json:"capabilities"`
	Status       string    `json:"status"`
	IssuedAt     time.Time `json:"issued_at"`

	// Version is the principal version the set was projected from.
	Version int64 `json:"version"`
	// RegistryVersion is the role registry table version used.
	RegistryVersion int `json:"registry_version"`

	// Orgs maps organization id to the principal's role within it.
	Orgs map[string]string `json:"orgs,omitempty"`
}

// HasCapability reports whether c is in the set's capability list.
func (c ClaimSet) HasCapability(cap string) bool {
	for _, x := range c.Capabilities {
		if x == cap {
			return true
		}
	}
	return false
}
