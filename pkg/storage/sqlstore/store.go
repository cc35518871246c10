package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AccelByte/extend-badge-engine/pkg/activity"
	"github.com/AccelByte/extend-badge-engine/pkg/aggregate"
	"github.com/AccelByte/extend-badge-engine/pkg/assignment"
	"github.com/AccelByte/extend-badge-engine/pkg/badge"
	"github.com/AccelByte/extend-badge-engine/pkg/user"
)

// Store implements the badge, activity, history, user and assignment stores
// on a gorm database.
type Store struct {
	db *gorm.DB
}

// New wraps an open database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	logrus.Info("database schema migrated")
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ListActiveBadges returns active badges ordered by creation time, then id.
func (s *Store) ListActiveBadges(ctx context.Context) ([]badge.Badge, error) {
	var models []badgeModel
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at, id").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", badge.ErrCatalogUnavailable, err)
	}
	return toBadges(models), nil
}

// List returns every badge, active or not, in creation order.
func (s *Store) List(ctx context.Context) ([]badge.Badge, error) {
	var models []badgeModel
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	return toBadges(models), nil
}

// Get returns the badge with the given id or badge.ErrBadgeNotFound.
func (s *Store) Get(ctx context.Context, id string) (badge.Badge, error) {
	var m badgeModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return badge.Badge{}, badge.ErrBadgeNotFound
	}
	if err != nil {
		return badge.Badge{}, fmt.Errorf("failed to get badge %s: %w", id, err)
	}
	return m.toBadge(), nil
}

// Create inserts a new badge and sets its timestamps. A taken id is
// reported as badge.ErrInvalidBadge.
func (s *Store) Create(ctx context.Context, b *badge.Badge) error {
	m := toBadgeModel(*b)
	err := s.db.WithContext(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: duplicate id %s", badge.ErrInvalidBadge, b.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create badge %s: %w", b.ID, err)
	}
	b.CreatedAt, b.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

// Update replaces the definition of an existing badge and refreshes b
// from the stored row.
func (s *Store) Update(ctx context.Context, b *badge.Badge) error {
	m := toBadgeModel(*b)
	m.UpdatedAt = time.Now().UTC()

	res := s.db.WithContext(ctx).
		Model(&badgeModel{}).
		Where("id = ?", b.ID).
		Select("name", "description", "active", "rules", "updated_at").
		Updates(&m)
	if res.Error != nil {
		return fmt.Errorf("failed to update badge %s: %w", b.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return badge.ErrBadgeNotFound
	}

	stored, err := s.Get(ctx, b.ID)
	if err != nil {
		return err
	}
	*b = stored
	return nil
}

// Delete removes a badge. Grants already made are kept.
func (s *Store) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&badgeModel{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete badge %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return badge.ErrBadgeNotFound
	}
	return nil
}

// Upsert inserts badges or overwrites their definition, keeping creation time.
func (s *Store) Upsert(ctx context.Context, badges []badge.Badge) error {
	if len(badges) == 0 {
		return nil
	}

	now := time.Now().UTC()
	models := make([]badgeModel, len(badges))
	for i, b := range badges {
		models[i] = toBadgeModel(b)
		// Keep seed order stable when every row is inserted in one statement.
		models[i].CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		models[i].UpdatedAt = now
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description", "active", "rules", "updated_at"}),
		}).
		Create(&models).Error
	if err != nil {
		return fmt.Errorf("failed to upsert badges: %w", err)
	}
	return nil
}

// CreateRecord persists an activity record.
func (s *Store) CreateRecord(ctx context.Context, rec *activity.Record) error {
	m := toSessionModel(*rec)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// ListByUser returns the user's records, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]activity.Record, error) {
	var models []sessionModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("occurred_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make([]activity.Record, len(models))
	for i, m := range models {
		out[i] = m.toRecord()
	}
	return out, nil
}

type totalsRow struct {
	Count       int64
	Calories    float64
	MaxCalories float64
}

func (s *Store) PriorTotals(ctx context.Context, userID, excludeID string) (aggregate.Totals, error) {
	var row totalsRow
	err := s.db.WithContext(ctx).
		Model(&sessionModel{}).
		Select("COUNT(*) AS count, COALESCE(SUM(calories), 0) AS calories, COALESCE(MAX(calories), 0) AS max_calories").
		Where("user_id = ? AND id <> ?", userID, excludeID).
		Scan(&row).Error
	if err != nil {
		return aggregate.Totals{}, fmt.Errorf("failed to aggregate sessions: %w", err)
	}
	return aggregate.Totals{Count: row.Count, Calories: row.Calories, MaxCalories: row.MaxCalories}, nil
}

func (s *Store) PriorChallenges(ctx context.Context, userID, excludeID string) ([]string, error) {
	return s.distinctSessions(ctx, "challenge_id", userID, excludeID)
}

func (s *Store) PriorActiveDays(ctx context.Context, userID, excludeID string) ([]string, error) {
	return s.distinctSessions(ctx, "day", userID, excludeID)
}

func (s *Store) distinctSessions(ctx context.Context, column, userID, excludeID string) ([]string, error) {
	var values []string
	err := s.db.WithContext(ctx).
		Model(&sessionModel{}).
		Distinct(column).
		Where("user_id = ? AND id <> ?", userID, excludeID).
		Pluck(column, &values).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read distinct %s: %w", column, err)
	}
	return values, nil
}

// Assign inserts (userID, badgeID) unless it already exists. The row count
// of the single INSERT ... ON CONFLICT DO NOTHING tells whether this call
// added it.
func (s *Store) Assign(ctx context.Context, userID, badgeID string) (assignment.Result, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&userBadgeModel{UserID: userID, BadgeID: badgeID, GrantedAt: time.Now().UTC()})
	if res.Error != nil {
		return assignment.Result{}, assignment.Fail(userID, badgeID, res.Error)
	}
	return assignment.Result{Granted: res.RowsAffected == 1}, nil
}

func (s *Store) BadgesOf(ctx context.Context, userID string) ([]assignment.Held, error) {
	var models []userBadgeModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("granted_at, badge_id").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list user badges: %w", err)
	}

	out := make([]assignment.Held, len(models))
	for i, m := range models {
		out[i] = assignment.Held{BadgeID: m.BadgeID, GrantedAt: m.GrantedAt}
	}
	return out, nil
}

// CreateUser stores a user. The badge set starts empty: it is the set of
// user_badges rows, of which there are none yet.
func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	m := userModel{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
	err := s.db.WithContext(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", user.ErrUserExists, u.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.CreatedAt = m.CreatedAt
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var m userModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return user.User{}, user.ErrUserNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return m.toUser(), nil
}

func toBadges(models []badgeModel) []badge.Badge {
	out := make([]badge.Badge, len(models))
	for i, m := range models {
		out[i] = m.toBadge()
	}
	return out
}
