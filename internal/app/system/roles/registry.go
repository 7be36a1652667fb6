// Package roles holds the Role Registry: the fixed mapping from role
// identifier to capability set and rank.
//
// The table is embedded at build time (registry.yaml) and parsed once. There
// is no API to mutate a Registry after it is built.
package roles

import (
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Well-known role identifiers.
const (
	Anonymous   = "anonymous"
	Member      = "member"
	Volunteer   = "volunteer"
	AIAssistant = "ai_assistant"
	Admin       = "admin"
	Root        = "root"
)

// Capabilities referenced directly by the service.
const (
	CapSystemAdmin     = "system_admin"
	CapUserManagement  = "user_management"
	CapRoleManagement  = "role_management"
	CapEventManagement = "event_management"
)

// UnknownRank is the rank of any role identifier not in the registry.
const UnknownRank = math.MinInt

//go:embed registry.yaml
var registryYAML []byte

type fileEntry struct {
	ID           string   `yaml:"id"`
	Rank         int      `yaml:"rank"`
	Wildcard     bool     `yaml:"wildcard"`
	Capabilities []string `yaml:"capabilities"`
}

type fileTable struct {
	Version        int         `yaml:"version"`
	Baseline       string      `yaml:"baseline"`
	Anonymous      string      `yaml:"anonymous"`
	AdminThreshold string      `yaml:"admin_threshold"`
	Capabilities   []string    `yaml:"capabilities"`
	Roles          []fileEntry `yaml:"roles"`
}

// Entry is one role in the registry.
type Entry struct {
	RoleID       string
	Rank         int
	Wildcard     bool
	capabilities map[string]struct{}
}

// Registry maps role identifiers to capability sets and ranks.
type Registry struct {
	version        int
	baseline       string
	anonymous      string
	adminThreshold int
	vocabulary     map[string]struct{}
	entries        map[string]Entry
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the registry built from the embedded table. It panics if the
// embedded table is malformed, which can only happen through a bad build.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = Parse(registryYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("roles: embedded registry: %v", defaultErr))
	}
	return defaultReg
}

// Parse builds a Registry from a YAML table. Every capability a role lists
// must appear in the capability vocabulary.
func Parse(data []byte) (*Registry, error) {
	var t fileTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	r := &Registry{
		version:    t.Version,
		baseline:   normalize(t.Baseline),
		anonymous:  normalize(t.Anonymous),
		vocabulary: make(map[string]struct{}, len(t.Capabilities)),
		entries:    make(map[string]Entry, len(t.Roles)),
	}
	for _, c := range t.Capabilities {
		r.vocabulary[normalize(c)] = struct{}{}
	}

	for _, fe := range t.Roles {
		id := normalize(fe.ID)
		if id == "" {
			return nil, fmt.Errorf("role with empty id")
		}
		if _, dup := r.entries[id]; dup {
			return nil, fmt.Errorf("duplicate role %q", id)
		}
		e := Entry{RoleID: id, Rank: fe.Rank, Wildcard: fe.Wildcard, capabilities: map[string]struct{}{}}
		if fe.Wildcard {
			for c := range r.vocabulary {
				e.capabilities[c] = struct{}{}
			}
		}
		for _, c := range fe.Capabilities {
			c = normalize(c)
			if _, ok := r.vocabulary[c]; !ok {
				return nil, fmt.Errorf("role %q lists unknown capability %q", id, c)
			}
			e.capabilities[c] = struct{}{}
		}
		r.entries[id] = e
	}

	for name, id := range map[string]string{"baseline": r.baseline, "anonymous": r.anonymous} {
		if _, ok := r.entries[id]; !ok {
			return nil, fmt.Errorf("%s role %q is not defined", name, id)
		}
	}
	th, ok := r.entries[normalize(t.AdminThreshold)]
	if !ok {
		return nil, fmt.Errorf("admin_threshold role %q is not defined", t.AdminThreshold)
	}
	r.adminThreshold = th.Rank
	return r, nil
}

// Version is the registry table version.
func (r *Registry) Version() int { return r.version }

// Baseline is the role assigned to principals with no roles.
func (r *Registry) Baseline() string { return r.baseline }

// AnonymousRole is the role used for requests without a credential.
func (r *Registry) AnonymousRole() string { return r.anonymous }

// AdminThreshold is the minimum rank that may act on resources it does not own.
func (r *Registry) AdminThreshold() int { return r.adminThreshold }

// IsKnown reports whether roleID is defined.
func (r *Registry) IsKnown(roleID string) bool {
	_, ok := r.entries[normalize(roleID)]
	return ok
}

// IsKnownCapability reports whether c belongs to the capability vocabulary.
func (r *Registry) IsKnownCapability(c string) bool {
	_, ok := r.vocabulary[normalize(c)]
	return ok
}

// CapabilitiesFor returns the capabilities granted by roleID, sorted.
// Unknown roles return an empty (non-nil) slice.
func (r *Registry) CapabilitiesFor(roleID string) []string {
	e, ok := r.entries[normalize(roleID)]
	if !ok {
		return []string{}
	}
	return sortedKeys(e.capabilities)
}

// RankOf returns the rank of roleID, or UnknownRank.
func (r *Registry) RankOf(roleID string) int {
	e, ok := r.entries[normalize(roleID)]
	if !ok {
		return UnknownRank
	}
	return e.Rank
}

// IsWildcard reports whether roleID grants every capability.
func (r *Registry) IsWildcard(roleID string) bool {
	e, ok := r.entries[normalize(roleID)]
	return ok && e.Wildcard
}

// Union returns the deduplicated, sorted capability set of all roles.
func (r *Registry) Union(roleIDs ...string) []string {
	set := make(map[string]struct{})
	for _, id := range roleIDs {
		if e, ok := r.entries[normalize(id)]; ok {
			for c := range e.capabilities {
				set[c] = struct{}{}
			}
		}
	}
	return sortedKeys(set)
}

// AnyAtLeast reports whether any of roleIDs has a rank >= threshold.
// Roles are additive: one qualifying role is enough.
func (r *Registry) AnyAtLeast(threshold int, roleIDs ...string) bool {
	for _, id := range roleIDs {
		if rk := r.RankOf(id); rk != UnknownRank && rk >= threshold {
			return true
		}
	}
	return false
}

// AnyWildcardOrAdmin reports whether any role is a wildcard role or meets the
// admin threshold.
func (r *Registry) AnyWildcardOrAdmin(roleIDs ...string) bool {
	for _, id := range roleIDs {
		if r.IsWildcard(id) {
			return true
		}
	}
	return r.AnyAtLeast(r.adminThreshold, roleIDs...)
}

// RoleIDs returns all defined role identifiers ordered by rank.
func (r *Registry) RoleIDs() []string {
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := r.entries[out[i]].Rank, r.entries[out[j]].Rank
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

// Normalize lowercases and trims a role or capability identifier.
func Normalize(s string) string { return normalize(s) }

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
