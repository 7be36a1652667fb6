// internal/app/store/sessions/store.go
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Session creation sources
const (
	CreatedByLogin = "login"
	CreatedByCLI   = "cli"
)

// End reasons
const (
	EndLogout   = "logout"
	EndRevoked  = "revoked"
	EndInactive = "inactive"
)

// ErrNotFound is returned when no session matches.
var ErrNotFound = errors.New("session not found")

// Session is one signed-in credential for a principal. The claims token
// attached to it is the identity provider's copy of the principal's claim set.
type Session struct {
	ID          string `bson:"_id"`
	PrincipalID string `bson:"principal_id"`

	// Timing
	LoginAt      time.Time  `bson:"login_at"`
	LogoutAt     *time.Time `bson:"logout_at,omitempty"`
	LastActiveAt time.Time  `bson:"last_active_at"`

	CreatedBy string `bson:"created_by,omitempty"`
	EndReason string `bson:"end_reason,omitempty"` // "logout", "revoked", "inactive", ""

	// Attached claim set (signed token) and when it was attached.
	ClaimsToken      string     `bson:"claims_token,omitempty"`
	ClaimsVersion    int64      `bson:"claims_version,omitempty"`
	ClaimsAttachedAt *time.Time `bson:"claims_attached_at,omitempty"`

	// Context
	IP        string `bson:"ip"`
	UserAgent string `bson:"user_agent,omitempty"`

	DurationSecs int64 `bson:"duration_secs,omitempty"`
}

// Active reports whether the session has not ended.
func (s Session) Active() bool { return s.LogoutAt == nil }

// Store manages principal sessions.
type Store struct {
	c *mongo.Collection
}

// New creates a new sessions Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("sessions")}
}

// EnsureIndexes creates necessary indexes for efficient querying.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "logout_at", Value: 1}, {Key: "last_active_at", Value: -1}},
			Options: options.Index().SetName("idx_sessions_active"),
		},
		{
			Keys:    bson.D{{Key: "principal_id", Value: 1}, {Key: "logout_at", Value: 1}, {Key: "claims_attached_at", Value: -1}},
			Options: options.Index().SetName("idx_sessions_principal"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create starts a new session. Existing sessions of the same principal stay
// open (one per device).
func (s *Store) Create(ctx context.Context, principalID, ip, userAgent, createdBy string) (Session, error) {
	now := time.Now().UTC()
	sess := Session{
		ID:           uuid.NewString(),
		PrincipalID:  principalID,
		LoginAt:      now,
		LastActiveAt: now,
		CreatedBy:    createdBy,
		IP:           ip,
		UserAgent:    userAgent,
	}
	if _, err := s.c.InsertOne(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// GetByID retrieves a session by its ID.
func (s *Store) GetByID(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Session{}, ErrNotFound
	}
	return sess, err
}

// GetActiveByPrincipal returns the open sessions of a principal.
func (s *Store) GetActiveByPrincipal(ctx context.Context, principalID string) ([]Session, error) {
	cur, err := s.c.Find(ctx, bson.M{"principal_id": principalID, "logout_at": nil})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AttachClaims stores token, projected from principal version, on every open
// session of principalID that does not already carry a newer version. It
// returns how many sessions received it; zero means none could.
func (s *Store) AttachClaims(ctx context.Context, principalID, token string, version int64) (int64, error) {
	now := time.Now().UTC()
	res, err := s.c.UpdateMany(ctx,
		bson.M{
			"principal_id": principalID,
			"logout_at":    nil,
			"$or": bson.A{
				bson.M{"claims_version": bson.M{"$exists": false}},
				bson.M{"claims_version": bson.M{"$lte": version}},
			},
		},
		bson.M{"$set": bson.M{"claims_token": token, "claims_version": version, "claims_attached_at": now}},
	)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

// LatestClaims returns the most recently attached claims token across the
// principal's open sessions. ErrNotFound means there is none.
func (s *Store) LatestClaims(ctx context.Context, principalID string) (string, error) {
	var sess Session
	opts := options.FindOne().SetSort(bson.D{{Key: "claims_attached_at", Value: -1}})
	err := s.c.FindOne(ctx, bson.M{
		"principal_id": principalID,
		"logout_at":    nil,
		"claims_token": bson.M{"$exists": true, "$ne": ""},
	}, opts).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return sess.ClaimsToken, nil
}

// RevokeAll ends every open session of principalID and drops their claims.
func (s *Store) RevokeAll(ctx context.Context, principalID string) (int64, error) {
	now := time.Now().UTC()
	res, err := s.c.UpdateMany(ctx,
		bson.M{"principal_id": principalID, "logout_at": nil},
		bson.M{
			"$set":   bson.M{"logout_at": now, "end_reason": EndRevoked},
			"$unset": bson.M{"claims_token": "", "claims_version": "", "claims_attached_at": ""},
		},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Close ends a session with the given reason and calculates duration.
func (s *Store) Close(ctx context.Context, id, reason string) error {
	now := time.Now().UTC()

	sess, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !sess.Active() {
		return nil
	}

	_, err = s.c.UpdateOne(ctx, bson.M{"_id": id, "logout_at": nil}, bson.M{
		"$set": bson.M{
			"logout_at":     now,
			"end_reason":    reason,
			"duration_secs": int64(now.Sub(sess.LoginAt).Seconds()),
		},
		"$unset": bson.M{"claims_token": "", "claims_version": "", "claims_attached_at": ""},
	})
	return err
}

// Touch updates last_active_at on an open session. It reports false if the
// session is closed or missing.
func (s *Store) Touch(ctx context.Context, id string) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "logout_at": nil},
		bson.M{"$set": bson.M{"last_active_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// CloseInactive closes open sessions idle for longer than threshold. It is
// called by the session cleanup worker.
func (s *Store) CloseInactive(ctx context.Context, threshold time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-threshold)

	res, err := s.c.UpdateMany(ctx,
		bson.M{"logout_at": nil, "last_active_at": bson.M{"$lt": cutoff}},
		bson.M{
			"$set":   bson.M{"logout_at": now, "end_reason": EndInactive},
			"$unset": bson.M{"claims_token": "", "claims_version": "", "claims_attached_at": ""},
		},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
