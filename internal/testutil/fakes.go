package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/store/audit"
	"github.com/dalemusser/portalauthz/internal/app/store/principals"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/normalize"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInjected is the default error returned by fault hooks.
var ErrInjected = errors.New("injected failure")

// MemPrincipals is an in-memory principal store with the same version
// semantics as store/principals.
type MemPrincipals struct {
	mu   sync.Mutex
	byID map[string]models.Principal

	// Fault injection. GetErr/UpdateErr are returned as-is; BlockGet makes
	// Get wait for the context to end.
	GetErr    error
	UpdateErr error
	InsertErr error
	BlockGet  bool

	Gets int
}

// NewMemPrincipals returns a store seeded with ps (each stored at version 1
// unless it already carries one).
func NewMemPrincipals(ps ...models.Principal) *MemPrincipals {
	m := &MemPrincipals{byID: make(map[string]models.Principal)}
	for _, p := range ps {
		if p.Version == 0 {
			p.Version = 1
		}
		p.Email = normalize.Email(p.Email)
		p.SyncPrimaryRole()
		m.byID[p.ID] = p.Clone()
	}
	return m
}

func (m *MemPrincipals) Get(ctx context.Context, id string) (models.Principal, error) {
	m.mu.Lock()
	m.Gets++
	block, getErr := m.BlockGet, m.GetErr
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return models.Principal{}, ctx.Err()
	}
	if getErr != nil {
		return models.Principal{}, getErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return models.Principal{}, principals.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemPrincipals) GetByEmail(ctx context.Context, email string) (models.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = normalize.Email(email)
	for _, p := range m.byID {
		if p.Email == email {
			return p.Clone(), nil
		}
	}
	return models.Principal{}, principals.ErrNotFound
}

func (m *MemPrincipals) List(ctx context.Context, f principals.ListFilter) ([]models.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Principal
	for _, p := range m.byID {
		if len(f.Statuses) > 0 && !containsString(f.Statuses, p.Status) {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && int64(len(out)) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemPrincipals) ListByStatus(ctx context.Context, status string, limit int64) ([]models.Principal, error) {
	return m.List(ctx, principals.ListFilter{Statuses: []string{status}, Limit: limit})
}

func (m *MemPrincipals) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.byID)), nil
}

func (m *MemPrincipals) Insert(ctx context.Context, p models.Principal) (models.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return models.Principal{}, m.InsertErr
	}
	p.Email = normalize.Email(p.Email)
	for _, existing := range m.byID {
		if existing.Email == p.Email {
			return models.Principal{}, principals.ErrDuplicateEmail
		}
	}
	p.SyncPrimaryRole()
	p.Version = 1
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	m.byID[p.ID] = p.Clone()
	return p, nil
}

func (m *MemPrincipals) Update(ctx context.Context, p models.Principal, expectedVersion int64) (models.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return models.Principal{}, m.UpdateErr
	}
	cur, ok := m.byID[p.ID]
	if !ok {
		return models.Principal{}, principals.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return models.Principal{}, principals.ErrVersionConflict
	}
	p.SyncPrimaryRole()
	p.Version = expectedVersion + 1
	p.UpdatedAt = time.Now().UTC()
	p.CreatedAt = cur.CreatedAt
	p.Email = cur.Email
	m.byID[p.ID] = p.Clone()
	return p, nil
}

func (m *MemPrincipals) DeleteIfVersion(ctx context.Context, id string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[id]
	if !ok || cur.Version != version {
		return principals.ErrVersionConflict
	}
	delete(m.byID, id)
	return nil
}

// Peek returns the stored principal without counting a Get.
func (m *MemPrincipals) Peek(id string) (models.Principal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	return p.Clone(), ok
}

// SetFaults replaces the fault hooks under the lock.
func (m *MemPrincipals) SetFaults(getErr, updateErr error, blockGet bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetErr, m.UpdateErr, m.BlockGet = getErr, updateErr, blockGet
}

// MemAudit is an in-memory audit sink.
type MemAudit struct {
	mu      sync.Mutex
	records []models.AuditRecord

	// AppendErr fails appends of success records, or every append when
	// FailAll is set.
	AppendErr error
	FailAll   bool
}

func NewMemAudit() *MemAudit { return &MemAudit{} }

func (a *MemAudit) Append(ctx context.Context, rec models.AuditRecord) (models.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.AppendErr != nil && (a.FailAll || rec.Success) {
		return models.AuditRecord{}, a.AppendErr
	}
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	a.records = append(a.records, rec)
	return rec, nil
}

func (a *MemAudit) Query(ctx context.Context, f audit.QueryFilter) ([]models.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AuditRecord
	for i := len(a.records) - 1; i >= 0; i-- {
		r := a.records[i]
		if f.TargetID != "" && r.TargetID != f.TargetID {
			continue
		}
		if f.ActorID != "" && r.ActorID != f.ActorID {
			continue
		}
		if f.Operation != "" && r.Operation != f.Operation {
			continue
		}
		out = append(out, r)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = audit.DefaultLimit
	}
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Records returns a copy of everything appended, oldest first.
func (a *MemAudit) Records() []models.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.AuditRecord(nil), a.records...)
}

// MemProvider is an in-memory identity provider: a principal either has an
// active session (optionally carrying a claim set) or it does not.
type MemProvider struct {
	mu       sync.Mutex
	sessions map[string]bool
	claims   map[string]models.ClaimSet

	AttachErr error
	RevokeErr error
	ReadErr   error

	Attaches int
	Revokes  int
}

func NewMemProvider() *MemProvider {
	return &MemProvider{sessions: map[string]bool{}, claims: map[string]models.ClaimSet{}}
}

// SignIn opens a session for principalID.
func (p *MemProvider) SignIn(principalID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[principalID] = true
}

// SetClaims opens a session carrying cs.
func (p *MemProvider) SetClaims(cs models.ClaimSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[cs.PrincipalID] = true
	p.claims[cs.PrincipalID] = cs
}

// SetClaimsFor opens a session for principalID carrying cs as-is, even if
// cs names a different principal.
func (p *MemProvider) SetClaimsFor(principalID string, cs models.ClaimSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[principalID] = true
	p.claims[principalID] = cs
}

// HasSession reports whether principalID has an open session.
func (p *MemProvider) HasSession(principalID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[principalID]
}

func (p *MemProvider) AttachClaims(ctx context.Context, principalID string, cs models.ClaimSet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AttachErr != nil {
		return p.AttachErr
	}
	if !p.sessions[principalID] {
		return authz.ErrNoSession
	}
	// Like store/sessions, a newer attached version is kept.
	if cur, ok := p.claims[principalID]; ok && cur.Version > cs.Version {
		return authz.ErrNoSession
	}
	p.Attaches++
	p.claims[principalID] = cs
	return nil
}

func (p *MemProvider) AttachedClaims(ctx context.Context, principalID string) (models.ClaimSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ReadErr != nil {
		return models.ClaimSet{}, p.ReadErr
	}
	if !p.sessions[principalID] {
		return models.ClaimSet{}, authz.ErrNoSession
	}
	cs, ok := p.claims[principalID]
	if !ok {
		return models.ClaimSet{}, authz.ErrNoClaims
	}
	return cs, nil
}

func (p *MemProvider) RevokeSessions(ctx context.Context, principalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RevokeErr != nil {
		return p.RevokeErr
	}
	p.Revokes++
	delete(p.sessions, principalID)
	delete(p.claims, principalID)
	return nil
}

// SetFaults replaces the provider fault hooks under the lock.
func (p *MemProvider) SetFaults(attachErr, revokeErr, readErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AttachErr, p.RevokeErr, p.ReadErr = attachErr, revokeErr, readErr
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
