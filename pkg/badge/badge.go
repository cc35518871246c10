package badge

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/AccelByte/extend-badge-engine/pkg/rule"
)

// idPattern keeps badge ids usable as SQL keys, Redis members and MongoDB
// field path segments.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Badge is an awardable achievement.
type Badge struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description" yaml:"description"`
	Active      bool         `json:"active" yaml:"active"`
	Rules       rule.RuleSet `json:"rules" yaml:"rules"`
	CreatedAt   time.Time    `json:"createdAt" yaml:"-"`
	UpdatedAt   time.Time    `json:"updatedAt" yaml:"-"`
}

// Clone returns a deep copy of the badge.
func (b Badge) Clone() Badge {
	b.Rules = b.Rules.Clone()
	return b
}

// Catalog provides the badge definitions the engine evaluates.
type Catalog interface {
	// ListActiveBadges returns a snapshot of active badges in catalog order.
	// Later changes to badges do not affect a returned snapshot.
	ListActiveBadges(ctx context.Context) ([]Badge, error)
}

// Repository is the administrative view of the badge store.
type Repository interface {
	Catalog

	List(ctx context.Context) ([]Badge, error)
	Get(ctx context.Context, id string) (Badge, error)
	Create(ctx context.Context, b *Badge) error
	Update(ctx context.Context, b *Badge) error
	Delete(ctx context.Context, id string) error

	// Upsert creates or replaces badges by id.
	Upsert(ctx context.Context, badges []Badge) error
}

// Validate checks the badge fields. When known is non-nil, every rule kind
// must satisfy it.
func Validate(b Badge, known func(rule.Kind) bool) error {
	if !idPattern.MatchString(b.ID) {
		return fmt.Errorf("%w: id %q must be 1-64 letters, digits, '_' or '-'", ErrInvalidBadge, b.ID)
	}
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidBadge)
	}
	if err := b.Rules.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBadge, err)
	}
	for _, r := range b.Rules {
		if r.Threshold < 0 {
			return fmt.Errorf("%w: rule %s: threshold must be non-negative", ErrInvalidBadge, r.Kind)
		}
		if known != nil && !known(r.Kind) {
			return fmt.Errorf("%w: %w: %s", ErrInvalidBadge, rule.ErrUnknownRuleType, r.Kind)
		}
	}
	return nil
}

// CloneAll deep-copies a slice of badges.
func CloneAll(badges []Badge) []Badge {
	out := make([]Badge, len(badges))
	for i, b := range badges {
		out[i] = b.Clone()
	}
	return out
}
