package sqlstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AccelByte/extend-badge-engine/pkg/activity"
	"github.com/AccelByte/extend-badge-engine/pkg/badge"
	"github.com/AccelByte/extend-badge-engine/pkg/rule"
	"github.com/AccelByte/extend-badge-engine/pkg/user"
)

type userModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255;not null"`
	Email     string `gorm:"size:255;index"`
	CreatedAt time.Time
}

func (userModel) TableName() string { return "users" }

type badgeModel struct {
	ID          string       `gorm:"primaryKey;size:64"`
	Name        string       `gorm:"size:255;not null"`
	Description string       `gorm:"type:text"`
	Active      bool         `gorm:"not null;index"`
	Rules       rule.RuleSet `gorm:"type:text;not null"`
	CreatedAt   time.Time    `gorm:"index"`
	UpdatedAt   time.Time
}

func (badgeModel) TableName() string { return "badges" }

type sessionModel struct {
	ID          string    `gorm:"primaryKey;size:64"`
	UserID      string    `gorm:"size:64;not null;index"`
	ChallengeID string    `gorm:"size:64;not null"`
	OccurredAt  time.Time `gorm:"not null"`
	Day         string    `gorm:"size:10;not null"`
	Calories    float64   `gorm:"not null;default:0"`
	Stats       jsonMap   `gorm:"type:text"`
	CreatedAt   time.Time
}

func (sessionModel) TableName() string { return "sessions" }

// userBadgeModel is one entry of a user's badge set. The composite primary
// key makes "insert if absent" a single statement.
type userBadgeModel struct {
	UserID    string `gorm:"primaryKey;size:64"`
	BadgeID   string `gorm:"primaryKey;size:64"`
	GrantedAt time.Time
}

func (userBadgeModel) TableName() string { return "user_badges" }

// Models lists every table for AutoMigrate.
func Models() []interface{} {
	return []interface{}{&userModel{}, &badgeModel{}, &sessionModel{}, &userBadgeModel{}}
}

type jsonMap map[string]interface{}

func (m jsonMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *jsonMap) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into jsonMap", src)
	}
	return json.Unmarshal(data, m)
}

func toBadgeModel(b badge.Badge) badgeModel {
	return badgeModel{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		Active:      b.Active,
		Rules:       b.Rules.Clone(),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func (m badgeModel) toBadge() badge.Badge {
	return badge.Badge{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Active:      m.Active,
		Rules:       m.Rules.Clone(),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toSessionModel(r activity.Record) sessionModel {
	return sessionModel{
		ID:          r.ID,
		UserID:      r.UserID,
		ChallengeID: r.ChallengeID,
		OccurredAt:  r.OccurredAt.UTC(),
		Day:         r.Day(),
		Calories:    r.Calories,
		Stats:       jsonMap(r.Stats),
		CreatedAt:   r.CreatedAt,
	}
}

func (m sessionModel) toRecord() activity.Record {
	return activity.Record{
		ID:          m.ID,
		UserID:      m.UserID,
		ChallengeID: m.ChallengeID,
		OccurredAt:  m.OccurredAt,
		Calories:    m.Calories,
		Stats:       map[string]interface{}(m.Stats),
		CreatedAt:   m.CreatedAt,
	}
}

func (m userModel) toUser() user.User {
	return user.User{ID: m.ID, Name: m.Name, Email: m.Email, CreatedAt: m.CreatedAt}
}
