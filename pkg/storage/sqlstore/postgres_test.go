package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/AccelByte/extend-badge-engine/pkg/assignment"
	"github.com/AccelByte/extend-badge-engine/pkg/badge"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), GormConfig())
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return New(gdb), mock
}

func TestPostgres_AssignUsesOnConflictDoNothing(t *testing.T) {
	tests := []struct {
		name    string
		rows    int64
		granted bool
	}{
		{name: "row inserted", rows: 1, granted: true},
		{name: "row already present", rows: 0, granted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)

			mock.ExpectExec(`INSERT INTO "user_badges" .* ON CONFLICT DO NOTHING`).
				WithArgs("u1", "b1", sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, tt.rows))

			res, err := s.Assign(context.Background(), "u1", "b1")
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if res.Granted != tt.granted {
				t.Errorf("Expected granted=%v, got %v", tt.granted, res.Granted)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("expectations: %v", err)
			}
		})
	}
}

func TestPostgres_AssignError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO "user_badges"`).WillReturnError(errors.New("connection reset"))

	_, err := s.Assign(context.Background(), "u1", "b1")
	if !errors.Is(err, assignment.ErrAssignmentFailed) {
		t.Fatalf("Expected ErrAssignmentFailed, got %v", err)
	}
}

func TestPostgres_ListActiveBadgesUnavailable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "badges" WHERE active = \$1 ORDER BY created_at, id`).
		WithArgs(true).
		WillReturnError(errors.New("connection refused"))

	_, err := s.ListActiveBadges(context.Background())
	if !errors.Is(err, badge.ErrCatalogUnavailable) {
		t.Fatalf("Expected ErrCatalogUnavailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgres_ListActiveBadgesDecodesRules(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "description", "active", "rules"}).
		AddRow("b1", "Burner", "", true, `{"calories":500,"sessionCount":3}`)
	mock.ExpectQuery(`SELECT \* FROM "badges"`).WillReturnRows(rows)

	badges, err := s.ListActiveBadges(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(badges) != 1 {
		t.Fatalf("Expected 1 badge, got %d", len(badges))
	}
	rs := badges[0].Rules
	if len(rs) != 2 || rs[0].Kind != "calories" || rs[1].Kind != "sessionCount" {
		t.Errorf("Expected ordered rules, got %+v", rs)
	}
}

func TestPostgres_PriorTotals(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) AS count, .* FROM "sessions" WHERE user_id = \$1 AND id <> \$2`).
		WithArgs("u1", "r9").
		WillReturnRows(sqlmock.NewRows([]string{"count", "calories", "max_calories"}).AddRow(2, 150.0, 100.0))

	totals, err := s.PriorTotals(context.Background(), "u1", "r9")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if totals.Count != 2 || totals.Calories != 150 || totals.MaxCalories != 100 {
		t.Errorf("Unexpected totals: %+v", totals)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
