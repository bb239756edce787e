package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
)

const gradeCategoryColumns = `id, course_id, name, assignment_type, weight, drop_lowest, created_at, updated_at`

// GradeConfigRepository persists grade categories and grade scales.
type GradeConfigRepository struct {
	db *sqlx.DB
}

// NewGradeConfigRepository constructs repository.
func NewGradeConfigRepository(db *sqlx.DB) *GradeConfigRepository {
	return &GradeConfigRepository{db: db}
}

// ListCategories returns a course's categories, heaviest first.
func (r *GradeConfigRepository) ListCategories(ctx context.Context, courseID string) ([]models.GradeCategory, error) {
	query := "SELECT " + gradeCategoryColumns + " FROM grade_categories WHERE course_id = $1 ORDER BY weight DESC, name"
	var categories []models.GradeCategory
	if err := r.db.SelectContext(ctx, &categories, query, courseID); err != nil {
		return nil, fmt.Errorf("list grade categories: %w", err)
	}
	return categories, nil
}

// FindCategory returns a category by id or sql.ErrNoRows.
func (r *GradeConfigRepository) FindCategory(ctx context.Context, id string) (*models.GradeCategory, error) {
	query := "SELECT " + gradeCategoryColumns + " FROM grade_categories WHERE id = $1"
	var category models.GradeCategory
	if err := r.db.GetContext(ctx, &category, query, id); err != nil {
		return nil, err
	}
	return &category, nil
}

// CategoryExists checks whether the course already has a category for the
// assignment type, excluding an optional id.
func (r *GradeConfigRepository) CategoryExists(ctx context.Context, courseID string, assignmentType models.AssignmentType, excludeID string) (bool, error) {
	query := "SELECT 1 FROM grade_categories WHERE course_id = $1 AND assignment_type = $2"
	args := []interface{}{courseID, assignmentType}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check grade category: %w", err)
	}
	return true, nil
}

// CreateCategory inserts a category.
func (r *GradeConfigRepository) CreateCategory(ctx context.Context, category *models.GradeCategory) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now
	const query = `INSERT INTO grade_categories (id, course_id, name, assignment_type, weight, drop_lowest, created_at, updated_at)
        VALUES (:id, :course_id, :name, :assignment_type, :weight, :drop_lowest, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("create grade category: %w", err)
	}
	return nil
}

// UpdateCategory updates a category in place.
func (r *GradeConfigRepository) UpdateCategory(ctx context.Context, category *models.GradeCategory) error {
	category.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grade_categories
        SET name = :name, assignment_type = :assignment_type, weight = :weight, drop_lowest = :drop_lowest, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("update grade category: %w", err)
	}
	return nil
}

// DeleteCategory removes a category.
func (r *GradeConfigRepository) DeleteCategory(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM grade_categories WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete grade category: %w", err)
	}
	return nil
}

// FindScale returns the course's grade scale or sql.ErrNoRows.
func (r *GradeConfigRepository) FindScale(ctx context.Context, courseID string) (*models.GradeScale, error) {
	const query = `SELECT id, course_id, a_min, b_min, c_min, d_min, use_plus_minus, created_at, updated_at
        FROM grade_scales WHERE course_id = $1`
	var scale models.GradeScale
	if err := r.db.GetContext(ctx, &scale, query, courseID); err != nil {
		return nil, err
	}
	return &scale, nil
}

// UpsertScale creates or replaces the course's grade scale.
func (r *GradeConfigRepository) UpsertScale(ctx context.Context, scale *models.GradeScale) error {
	if scale.ID == "" {
		scale.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if scale.CreatedAt.IsZero() {
		scale.CreatedAt = now
	}
	scale.UpdatedAt = now
	const query = `INSERT INTO grade_scales (id, course_id, a_min, b_min, c_min, d_min, use_plus_minus, created_at, updated_at)
        VALUES (:id, :course_id, :a_min, :b_min, :c_min, :d_min, :use_plus_minus, :created_at, :updated_at)
        ON CONFLICT (course_id)
        DO UPDATE SET a_min = EXCLUDED.a_min, b_min = EXCLUDED.b_min, c_min = EXCLUDED.c_min, d_min = EXCLUDED.d_min,
            use_plus_minus = EXCLUDED.use_plus_minus, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, scale); err != nil {
		return fmt.Errorf("upsert grade scale: %w", err)
	}
	return nil
}
