package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/classlens-inc/classlens-engine/pkg/apperrors"
	"github.com/classlens-inc/classlens-engine/pkg/database"
	"github.com/classlens-inc/classlens-engine/pkg/models"
)

// RosterRepository provides data access for the student roster. The
// recognition pipeline only ever reads it; writes exist for roster
// administration.
type RosterRepository interface {
	List(ctx context.Context) (models.Roster, error)
	GetByRoll(ctx context.Context, rollNumber string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Upsert(ctx context.Context, students []models.Student) (int, error)
}

type rosterRepository struct {
	db *database.DB
}

// NewRosterRepository creates a new RosterRepository.
func NewRosterRepository(db *database.DB) RosterRepository {
	return &rosterRepository{db: db}
}

var _ RosterRepository = (*rosterRepository)(nil)

func (r *rosterRepository) List(ctx context.Context) (models.Roster, error) {
	query := `
		SELECT roll_number, name, created_at
		FROM engine_students
		ORDER BY roll_number`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	roster := make(models.Roster, 0)
	for rows.Next() {
		var s models.Student
		if err := rows.Scan(&s.RollNumber, &s.Name, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		roster = append(roster, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating students: %w", err)
	}

	return roster, nil
}

func (r *rosterRepository) GetByRoll(ctx context.Context, rollNumber string) (*models.Student, error) {
	query := `
		SELECT roll_number, name, created_at
		FROM engine_students
		WHERE roll_number = $1`

	var s models.Student
	err := r.db.QueryRow(ctx, query, rollNumber).Scan(&s.RollNumber, &s.Name, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}

	return &s, nil
}

func (r *rosterRepository) Create(ctx context.Context, student *models.Student) error {
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO engine_students (roll_number, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (roll_number) DO NOTHING`

	result, err := r.db.Exec(ctx, query, student.RollNumber, student.Name, student.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}

	return nil
}

// Upsert inserts or updates students in bulk; used by roster import.
// Returns the number of rows written.
func (r *rosterRepository) Upsert(ctx context.Context, students []models.Student) (int, error) {
	query := `
		INSERT INTO engine_students (roll_number, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (roll_number)
		DO UPDATE SET name = EXCLUDED.name`

	written := 0
	now := time.Now()
	for _, s := range students {
		createdAt := s.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := r.db.Exec(ctx, query, s.RollNumber, s.Name, createdAt); err != nil {
			return written, fmt.Errorf("failed to upsert student %s: %w", s.RollNumber, err)
		}
		written++
	}

	return written, nil
}
