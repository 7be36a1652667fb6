package roles

// legacyAliases maps role spellings found in older principal records to the
// registry identifiers that replaced them.
var legacyAliases = map[string]string{
	"parent":        Member,
	"den_leader":    Volunteer,
	"den-leader":    Volunteer,
	"cubmaster":     Admin,
	"content-admin": Admin,
	"content_admin": Admin,
	"moderator":     Volunteer,
	"super_admin":   Root,
	"super-admin":   Root,
	"superadmin":    Root,
	"copse_admin":   Root,
}

// Canonical maps a legacy role spelling to its registry identifier. Identifiers
// that are not legacy spellings are returned normalized but otherwise unchanged.
func Canonical(roleID string) (string, bool) {
	id := normalize(roleID)
	if to, ok := legacyAliases[id]; ok {
		return to, true
	}
	return id, false
}

// LegacyFlags is the boolean view older consumers expect. It is always derived
// from roles, never stored.
type LegacyFlags struct {
	IsAdmin     bool `json:"isAdmin"`
	IsDenLeader bool `json:"isDenLeader"`
	IsCubmaster bool `json:"isCubmaster"`
}

// FlagsFor derives the legacy boolean flags from a set of held roles.
func (r *Registry) FlagsFor(roleIDs ...string) LegacyFlags {
	return LegacyFlags{
		IsAdmin:     r.AnyAtLeast(r.RankOf(Admin), roleIDs...),
		IsDenLeader: r.AnyAtLeast(r.RankOf(Volunteer), roleIDs...),
		IsCubmaster: r.AnyAtLeast(r.RankOf(Root), roleIDs...),
	}
}
