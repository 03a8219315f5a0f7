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

const enrollmentColumns = `id, student_id, course_id, status, instructor_approval, instructor_remarks, instructor_action_at,
advisor_id, advisor_approval, advisor_remarks, advisor_action_at, created_at, updated_at`

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.course_id, e.status, e.instructor_approval, e.instructor_remarks,
e.instructor_action_at, e.advisor_id, e.advisor_approval, e.advisor_remarks, e.advisor_action_at, e.created_at, e.updated_at,
s.name AS student_name, s.email AS student_email,
c.code AS course_code, c.name AS course_name, c.instructor_id,
COALESCE(i.name, '') AS instructor_name, COALESCE(i.email, '') AS instructor_email,
a.name AS advisor_name, a.email AS advisor_email
FROM enrollments e
JOIN users s ON s.id = e.student_id
JOIN courses c ON c.id = e.course_id
LEFT JOIN users i ON i.id = c.instructor_id
LEFT JOIN users a ON a.id = e.advisor_id`

// EnrollmentRepository manages enrollment requests and their stage decisions.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create inserts a pending request. A second request for the same student and course yields ErrDuplicate.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPendingInstructor
	}
	const query = `INSERT INTO enrollments (id, student_id, course_id, status, advisor_id, created_at, updated_at)
VALUES (:id, :student_id, :course_id, :status, :advisor_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns the bare enrollment record.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// FindDetailByID returns the enrollment joined with student, course and advisor info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, enrollmentDetailSelect+` WHERE e.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment detail: %w", err)
	}
	return &detail, nil
}

// Exists reports whether the student already has a request for the course.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID); err != nil {
		return false, fmt.Errorf("check enrollment exists: %w", err)
	}
	return exists, nil
}

// List returns enrollments matching the filter, newest first.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	var conditions []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.StudentID != "" {
		add("e.student_id", filter.StudentID)
	}
	if filter.CourseID != "" {
		add("e.course_id", filter.CourseID)
	}
	if filter.InstructorID != "" {
		add("c.instructor_id", filter.InstructorID)
	}
	if filter.AdvisorID != "" {
		add("e.advisor_id", filter.AdvisorID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, "e.status IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := enrollmentDetailSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY e.created_at DESC"

	var items []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return items, nil
}

// RecordDecision applies a stage verdict that allocates no seat.
// It returns sql.ErrNoRows when the enrollment no longer holds the From status.
func (r *EnrollmentRepository) RecordDecision(ctx context.Context, d models.StageDecision) error {
	return applyDecision(ctx, r.db, d)
}

// RecordFinalApproval applies the advisor approval and allocates one seat in the same transaction.
// A stale status yields sql.ErrNoRows; a full course yields ErrSeatUnavailable. Either leaves both rows untouched.
func (r *EnrollmentRepository) RecordFinalApproval(ctx context.Context, d models.StageDecision, courseID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin final approval: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = applyDecision(ctx, tx, d); err != nil {
		return err
	}

	const seatQuery = `UPDATE courses SET enrolled_count = enrolled_count + 1, updated_at = $2 WHERE id = $1 AND enrolled_count < max_seats`
	result, err := tx.ExecContext(ctx, seatQuery, courseID, d.At)
	if err != nil {
		return fmt.Errorf("allocate seat: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check seat allocation rows: %w", err)
	}
	if rows == 0 {
		err = ErrSeatUnavailable
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit final approval: %w", err)
	}
	return nil
}

func applyDecision(ctx context.Context, exec sqlx.ExtContext, d models.StageDecision) error {
	approved := d.Decision.Approved()
	args := []interface{}{d.EnrollmentID, d.To, approved, d.Remarks, d.At, d.From}
	var query string
	switch d.Stage {
	case models.StageInstructor:
		query = `UPDATE enrollments SET status = $2, instructor_approval = $3, instructor_remarks = $4, instructor_action_at = $5, updated_at = $5 WHERE id = $1 AND status = $6`
	case models.StageAdvisor:
		// An unassigned request is claimed by the advisor who decides it.
		query = `UPDATE enrollments SET status = $2, advisor_approval = $3, advisor_remarks = $4, advisor_action_at = $5, updated_at = $5, advisor_id = COALESCE(advisor_id, $7) WHERE id = $1 AND status = $6`
		var advisorID interface{}
		if d.AdvisorID != "" {
			advisorID = d.AdvisorID
		}
		args = append(args, advisorID)
	default:
		return fmt.Errorf("unknown approval stage %q", d.Stage)
	}
	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("record %s decision: %w", d.Stage, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s decision rows: %w", d.Stage, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
