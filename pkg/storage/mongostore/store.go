package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AccelByte/extend-badge-engine/pkg/activity"
	"github.com/AccelByte/extend-badge-engine/pkg/aggregate"
	"github.com/AccelByte/extend-badge-engine/pkg/assignment"
	"github.com/AccelByte/extend-badge-engine/pkg/badge"
	"github.com/AccelByte/extend-badge-engine/pkg/rule"
	"github.com/AccelByte/extend-badge-engine/pkg/user"
)

const (
	usersCollection    = "users"
	badgesCollection   = "badges"
	sessionsCollection = "sessions"
)

type userDoc struct {
	ID        string               `bson:"_id"`
	Name      string               `bson:"name"`
	Email     string               `bson:"email,omitempty"`
	Badges    []string             `bson:"badges"`
	GrantedAt map[string]time.Time `bson:"badgeGrantedAt,omitempty"`
	CreatedAt time.Time            `bson:"createdAt"`
}

type badgeDoc struct {
	ID          string       `bson:"_id"`
	Name        string       `bson:"name"`
	Description string       `bson:"description"`
	Active      bool         `bson:"active"`
	Rules       rule.RuleSet `bson:"rules"`
	CreatedAt   time.Time    `bson:"createdAt"`
	UpdatedAt   time.Time    `bson:"updatedAt"`
}

type sessionDoc struct {
	ID          string                 `bson:"_id"`
	UserID      string                 `bson:"userId"`
	ChallengeID string                 `bson:"challengeId"`
	OccurredAt  time.Time              `bson:"occurredAt"`
	Day         string                 `bson:"day"`
	Calories    float64                `bson:"calories"`
	Stats       map[string]interface{} `bson:"stats,omitempty"`
	CreatedAt   time.Time              `bson:"createdAt"`
}

// Store implements the badge, activity, history, user and assignment stores
// on MongoDB. A user's badge set is the "badges" array of the user document.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a client and waits for the server with exponential backoff.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %w", err)
	}

	err = backoff.Retry(
		func() error {
			if err := client.Ping(ctx, nil); err != nil {
				logrus.Warnf("MongoDB connection failed: %v, retrying...", err)
				return err
			}
			return nil
		},
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx),
	)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	logrus.Infof("connected to MongoDB database %s", database)
	return New(client, database), nil
}

// New wraps a connected client.
func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

// EnsureIndexes creates the indexes the queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(sessionsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "occurredAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create session index: %w", err)
	}

	_, err = s.db.Collection(badgesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "active", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create badge index: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var badgeOrder = options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

func (s *Store) ListActiveBadges(ctx context.Context) ([]badge.Badge, error) {
	badges, err := s.findBadges(ctx, bson.M{"active": true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", badge.ErrCatalogUnavailable, err)
	}
	return badges, nil
}

// List returns every badge in creation order.
func (s *Store) List(ctx context.Context) ([]badge.Badge, error) {
	badges, err := s.findBadges(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	return badges, nil
}

func (s *Store) findBadges(ctx context.Context, filter bson.M) ([]badge.Badge, error) {
	cur, err := s.db.Collection(badgesCollection).Find(ctx, filter, badgeOrder)
	if err != nil {
		return nil, err
	}

	var docs []badgeDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]badge.Badge, len(docs))
	for i, d := range docs {
		out[i] = d.toBadge()
	}
	return out, nil
}

// Get returns the badge with the given id or badge.ErrBadgeNotFound.
func (s *Store) Get(ctx context.Context, id string) (badge.Badge, error) {
	var d badgeDoc
	err := s.db.Collection(badgesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return badge.Badge{}, badge.ErrBadgeNotFound
	}
	if err != nil {
		return badge.Badge{}, fmt.Errorf("failed to get badge %s: %w", id, err)
	}
	return d.toBadge(), nil
}

// Create inserts a new badge. A taken id is reported as badge.ErrInvalidBadge.
func (s *Store) Create(ctx context.Context, b *badge.Badge) error {
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now

	_, err := s.db.Collection(badgesCollection).InsertOne(ctx, toBadgeDoc(*b))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: duplicate id %s", badge.ErrInvalidBadge, b.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create badge %s: %w", b.ID, err)
	}
	return nil
}

// Update replaces the definition of an existing badge and refreshes b
// from the stored document.
func (s *Store) Update(ctx context.Context, b *badge.Badge) error {
	var d badgeDoc
	err := s.db.Collection(badgesCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": b.ID},
		bson.M{"$set": bson.M{
			"name":        b.Name,
			"description": b.Description,
			"active":      b.Active,
			"rules":       b.Rules,
			"updatedAt":   time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return badge.ErrBadgeNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update badge %s: %w", b.ID, err)
	}
	*b = d.toBadge()
	return nil
}

// Delete removes a badge. Users keep badges already granted.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.Collection(badgesCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete badge %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return badge.ErrBadgeNotFound
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, badges []badge.Badge) error {
	now := time.Now().UTC()
	for i, b := range badges {
		_, err := s.db.Collection(badgesCollection).UpdateOne(ctx,
			bson.M{"_id": b.ID},
			bson.M{
				"$set": bson.M{
					"name":        b.Name,
					"description": b.Description,
					"active":      b.Active,
					"rules":       b.Rules,
					"updatedAt":   now,
				},
				"$setOnInsert": bson.M{"createdAt": now.Add(time.Duration(i) * time.Millisecond)},
			},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert badge %s: %w", b.ID, err)
		}
	}
	return nil
}

func (s *Store) CreateRecord(ctx context.Context, rec *activity.Record) error {
	_, err := s.db.Collection(sessionsCollection).InsertOne(ctx, sessionDoc{
		ID:          rec.ID,
		UserID:      rec.UserID,
		ChallengeID: rec.ChallengeID,
		OccurredAt:  rec.OccurredAt.UTC(),
		Day:         rec.Day(),
		Calories:    rec.Calories,
		Stats:       rec.Stats,
		CreatedAt:   rec.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]activity.Record, error) {
	cur, err := s.db.Collection(sessionsCollection).Find(ctx,
		bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "occurredAt", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var docs []sessionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}

	out := make([]activity.Record, len(docs))
	for i, d := range docs {
		out[i] = activity.Record{
			ID:          d.ID,
			UserID:      d.UserID,
			ChallengeID: d.ChallengeID,
			OccurredAt:  d.OccurredAt,
			Calories:    d.Calories,
			Stats:       d.Stats,
			CreatedAt:   d.CreatedAt,
		}
	}
	return out, nil
}

func priorFilter(userID, excludeID string) bson.M {
	return bson.M{"userId": userID, "_id": bson.M{"$ne": excludeID}}
}

func (s *Store) PriorTotals(ctx context.Context, userID, excludeID string) (aggregate.Totals, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: priorFilter(userID, excludeID)}},
		{{Key: "$group", Value: bson.M{
			"_id":         nil,
			"count":       bson.M{"$sum": 1},
			"calories":    bson.M{"$sum": "$calories"},
			"maxCalories": bson.M{"$max": "$calories"},
		}}},
	}

	cur, err := s.db.Collection(sessionsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return aggregate.Totals{}, fmt.Errorf("failed to aggregate sessions: %w", err)
	}

	var rows []struct {
		Count       int64   `bson:"count"`
		Calories    float64 `bson:"calories"`
		MaxCalories float64 `bson:"maxCalories"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return aggregate.Totals{}, fmt.Errorf("failed to decode session totals: %w", err)
	}
	if len(rows) == 0 {
		return aggregate.Totals{}, nil
	}
	return aggregate.Totals{Count: rows[0].Count, Calories: rows[0].Calories, MaxCalories: rows[0].MaxCalories}, nil
}

func (s *Store) PriorChallenges(ctx context.Context, userID, excludeID string) ([]string, error) {
	return s.distinct(ctx, "challengeId", userID, excludeID)
}

func (s *Store) PriorActiveDays(ctx context.Context, userID, excludeID string) ([]string, error) {
	return s.distinct(ctx, "day", userID, excludeID)
}

func (s *Store) distinct(ctx context.Context, field, userID, excludeID string) ([]string, error) {
	values, err := s.db.Collection(sessionsCollection).Distinct(ctx, field, priorFilter(userID, excludeID))
	if err != nil {
		return nil, fmt.Errorf("failed to read distinct %s: %w", field, err)
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out, nil
}

// Assign adds badgeID to the user's badge array with $addToSet. A modified
// document means this call added it; $min keeps the first grant time.
func (s *Store) Assign(ctx context.Context, userID, badgeID string) (assignment.Result, error) {
	res, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$addToSet": bson.M{"badges": badgeID},
			"$min":      bson.M{"badgeGrantedAt." + badgeID: time.Now().UTC()},
		},
	)
	if err != nil {
		return assignment.Result{}, assignment.Fail(userID, badgeID, err)
	}
	if res.MatchedCount == 0 {
		return assignment.Result{}, assignment.Fail(userID, badgeID, assignment.ErrUserNotFound)
	}
	return assignment.Result{Granted: res.ModifiedCount == 1}, nil
}

func (s *Store) BadgesOf(ctx context.Context, userID string) ([]assignment.Held, error) {
	var d userDoc
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []assignment.Held{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user badges: %w", err)
	}

	out := make([]assignment.Held, 0, len(d.Badges))
	for _, id := range d.Badges {
		out = append(out, assignment.Held{BadgeID: id, GrantedAt: d.GrantedAt[id]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Collection(usersCollection).InsertOne(ctx, userDoc{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Badges:    []string{},
		CreatedAt: u.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", user.ErrUserExists, u.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var d userDoc
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return user.User{}, user.ErrUserNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return user.User{ID: d.ID, Name: d.Name, Email: d.Email, CreatedAt: d.CreatedAt}, nil
}

func toBadgeDoc(b badge.Badge) badgeDoc {
	return badgeDoc{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		Active:      b.Active,
		Rules:       b.Rules.Clone(),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func (d badgeDoc) toBadge() badge.Badge {
	return badge.Badge{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Active:      d.Active,
		Rules:       d.Rules.Clone(),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
