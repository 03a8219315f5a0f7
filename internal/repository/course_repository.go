package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/aims-enrollment-api/internal/models"
)

const courseDetailSelect = `SELECT c.id, c.code, c.name, c.description, c.credits, c.department, c.instructor_id,
c.max_seats, c.enrolled_count, c.is_open, c.created_at, c.updated_at,
COALESCE(u.name, '') AS instructor_name, COALESCE(u.email, '') AS instructor_email
FROM courses c
LEFT JOIN users u ON u.id = c.instructor_id`

// CourseRepository handles persistence for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course with instructor info.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	var course models.CourseDetail
	if err := r.db.GetContext(ctx, &course, courseDetailSelect+` WHERE c.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	course.Derive()
	return &course, nil
}

// List returns courses matching the filter ordered by code.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, error) {
	var conditions []string
	var args []interface{}
	if filter.OpenOnly {
		conditions = append(conditions, "c.is_open = TRUE")
	}
	if filter.InstructorID != "" {
		args = append(args, filter.InstructorID)
		conditions = append(conditions, fmt.Sprintf("c.instructor_id = $%d", len(args)))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		conditions = append(conditions, fmt.Sprintf("c.department = $%d", len(args)))
	}

	query := courseDetailSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY c.code ASC"

	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	for i := range courses {
		courses[i].Derive()
	}
	return courses, nil
}

// Create inserts a course. A clash on the code index yields ErrDuplicate.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, code, name, description, credits, department, instructor_id, max_seats, enrolled_count, is_open, created_at, updated_at)
VALUES (:id, :code, :name, :description, :credits, :department, :instructor_id, :max_seats, :enrolled_count, :is_open, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update writes catalogue fields. The seat counter is never written here.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET code = :code, name = :name, description = :description, credits = :credits,
department = :department, instructor_id = :instructor_id, max_seats = :max_seats, is_open = :is_open, updated_at = :updated_at
WHERE id = :id AND enrolled_count <= :max_seats`
	result, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update course: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check course update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetOpen flips the open flag.
func (r *CourseRepository) SetOpen(ctx context.Context, id string, open bool) error {
	const query = `UPDATE courses SET is_open = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, open, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set course open: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check course open rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a course that has no enrollments.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM courses WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM enrollments WHERE course_id = $1)`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check course delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountEnrollments returns how many requests reference the course.
func (r *CourseRepository) CountEnrollments(ctx context.Context, id string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE course_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count course enrollments: %w", err)
	}
	return count, nil
}
