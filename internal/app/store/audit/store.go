// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"github.com/dalemusser/portalauthz/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// DefaultLimit is the page size used when a query does not set one.
const DefaultLimit = 100

// QueryFilter defines filters for querying audit records.
type QueryFilter struct {
	TargetID  string
	ActorID   string
	Operation string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int64
	Offset    int64
}

// Store is the append-only audit trail. There is no update or delete.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store. Appends use majority write concern: a
// mutation is only considered audited once the record is durable.
func New(db *mongo.Database) *Store {
	opts := options.Collection().SetWriteConcern(writeconcern.Majority())
	return &Store{c: db.Collection("audit_records", opts)}
}

// EnsureIndexes creates necessary indexes for efficient querying.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_time"),
		},
		{
			Keys:    bson.D{{Key: "target_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_target"),
		},
		{
			Keys:    bson.D{{Key: "actor_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_actor"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Append records an audit entry and returns it with ID and Timestamp set.
func (s *Store) Append(ctx context.Context, rec models.AuditRecord) (models.AuditRecord, error) {
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, rec); err != nil {
		return models.AuditRecord{}, err
	}
	return rec, nil
}

func buildQuery(f QueryFilter) bson.M {
	query := bson.M{}
	if f.TargetID != "" {
		query["target_id"] = f.TargetID
	}
	if f.ActorID != "" {
		query["actor_id"] = f.ActorID
	}
	if f.Operation != "" {
		query["operation"] = f.Operation
	}
	if f.StartTime != nil || f.EndTime != nil {
		timeQuery := bson.M{}
		if f.StartTime != nil {
			timeQuery["$gte"] = *f.StartTime
		}
		if f.EndTime != nil {
			timeQuery["$lte"] = *f.EndTime
		}
		query["timestamp"] = timeQuery
	}
	return query
}

// Query retrieves audit records matching the filter, newest first.
func (s *Store) Query(ctx context.Context, f QueryFilter) ([]models.AuditRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(f.Offset)

	cur, err := s.c.Find(ctx, buildQuery(f), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.AuditRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByFilter returns the count of records matching the filter.
func (s *Store) CountByFilter(ctx context.Context, f QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, buildQuery(f))
}
