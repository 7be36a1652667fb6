// internal/app/store/principals/store.go
package principals

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/system/normalize"
	"github.com/dalemusser/portalauthz/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

var (
	// ErrNotFound is returned when no principal matches the lookup.
	ErrNotFound = errors.New("principal not found")
	// ErrVersionConflict is returned when a write's expected version does not
	// match the stored document.
	ErrVersionConflict = errors.New("principal was modified concurrently")
	// ErrDuplicateEmail is returned when inserting a principal whose email is
	// already registered.
	ErrDuplicateEmail = errors.New("a principal with this email already exists")
)

// Store persists principals. Reads go to the primary with majority read
// concern so a write acknowledged by Update is visible to the next Get.
type Store struct {
	c        *mongo.Collection
	baseline string
}

// New returns a principal Store over db's "principals" collection.
func New(db *mongo.Database) *Store {
	opts := options.Collection().
		SetReadPreference(readpref.Primary()).
		SetReadConcern(readconcern.Majority()).
		SetWriteConcern(writeconcern.Majority())
	return &Store{c: db.Collection("principals", opts)}
}

// SetBaselineRole sets the role given to approved or active principals that
// are stored without one, on read and on write.
func (s *Store) SetBaselineRole(role string) { s.baseline = role }

// EnsureIndexes creates the unique email index and the status listing index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("uniq_principals_email").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_principals_status_created"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Get loads a principal by id.
func (s *Store) Get(ctx context.Context, id string) (models.Principal, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail loads a principal by case-insensitive email.
func (s *Store) GetByEmail(ctx context.Context, email string) (models.Principal, error) {
	return s.findOne(ctx, bson.M{"email": normalize.Email(email)})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.Principal, error) {
	var p models.Principal
	if err := s.c.FindOne(ctx, filter).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Principal{}, ErrNotFound
		}
		return models.Principal{}, err
	}
	p.DefaultRoles(s.baseline)
	return p, nil
}

// ListFilter narrows List. An empty Statuses matches every status.
type ListFilter struct {
	Statuses []string
	Limit    int64 // 0 = no limit
}

// List returns principals ordered by creation time.
func (s *Store) List(ctx context.Context, f ListFilter) ([]models.Principal, error) {
	query := bson.M{}
	if len(f.Statuses) > 0 {
		query["status"] = bson.M{"$in": f.Statuses}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}

	cur, err := s.c.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Principal
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].DefaultRoles(s.baseline)
	}
	return out, nil
}

// ListByStatus is List restricted to one status.
func (s *Store) ListByStatus(ctx context.Context, status string, limit int64) ([]models.Principal, error) {
	return s.List(ctx, ListFilter{Statuses: []string{status}, Limit: limit})
}

// Count returns the number of stored principals.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{})
}

// Insert stores a new principal at version 1. The caller supplies the ID.
func (s *Store) Insert(ctx context.Context, p models.Principal) (models.Principal, error) {
	if p.ID == "" {
		return models.Principal{}, errors.New("principal id is required")
	}
	p.Email = normalize.Email(p.Email)
	p.DisplayName = normalize.Name(p.DisplayName)
	p.DefaultRoles(s.baseline)
	p.Version = 1
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, p); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Principal{}, ErrDuplicateEmail
		}
		return models.Principal{}, err
	}
	return p, nil
}

// Update replaces the authorization fields of p if the stored version equals
// expectedVersion, and bumps the version by one. It returns ErrNotFound if
// the principal does not exist and ErrVersionConflict if it changed.
func (s *Store) Update(ctx context.Context, p models.Principal, expectedVersion int64) (models.Principal, error) {
	p.DefaultRoles(s.baseline)
	p.Version = expectedVersion + 1
	p.UpdatedAt = time.Now().UTC()

	set := bson.M{
		"role":                     p.Role,
		"roles":                    p.Roles,
		"status":                   p.Status,
		"permission_overrides":     p.PermissionOverrides,
		"organization_memberships": p.OrganizationMemberships,
		"version":                  p.Version,
		"updated_at":               p.UpdatedAt,
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": p.ID, "version": expectedVersion},
		bson.M{"$set": set},
	)
	if err != nil {
		return models.Principal{}, err
	}
	if res.MatchedCount == 0 {
		n, err := s.c.CountDocuments(ctx, bson.M{"_id": p.ID})
		if err != nil {
			return models.Principal{}, err
		}
		if n == 0 {
			return models.Principal{}, ErrNotFound
		}
		return models.Principal{}, ErrVersionConflict
	}
	return p, nil
}

// DeleteIfVersion removes a principal only if it is still at version. It is
// used to undo an insert whose follow-up steps failed.
func (s *Store) DeleteIfVersion(ctx context.Context, id string, version int64) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "version": version})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}
