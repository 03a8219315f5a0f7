package models

import "time"

// Credit bounds for a course.
const (
	MinCourseCredits = 1
	MaxCourseCredits = 6
)

// Course is a capacity-bounded offering owned by one instructor.
// EnrolledCount is written only by the final-approval transaction.
type Course struct {
	ID            string    `db:"id" json:"id"`
	Code          string    `db:"code" json:"code"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description"`
	Credits       int       `db:"credits" json:"credits"`
	Department    string    `db:"department" json:"department"`
	InstructorID  string    `db:"instructor_id" json:"instructor_id"`
	MaxSeats      int       `db:"max_seats" json:"max_seats"`
	EnrolledCount int       `db:"enrolled_count" json:"enrolled_count"`
	IsOpen        bool      `db:"is_open" json:"is_open"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// IsFull reports whether no seat remains.
func (c Course) IsFull() bool {
	return c.EnrolledCount >= c.MaxSeats
}

// AvailableSeats returns the number of unallocated seats.
func (c Course) AvailableSeats() int {
	if c.IsFull() {
		return 0
	}
	return c.MaxSeats - c.EnrolledCount
}

// CourseDetail adds instructor info and derived seat figures.
type CourseDetail struct {
	Course
	InstructorName  string `db:"instructor_name" json:"instructor_name"`
	InstructorEmail string `db:"instructor_email" json:"instructor_email"`
	Full            bool   `db:"-" json:"is_full"`
	Available       int    `db:"-" json:"available_seats"`
}

// Derive fills the computed fields.
func (d *CourseDetail) Derive() {
	d.Full = d.IsFull()
	d.Available = d.AvailableSeats()
	if d.InstructorName == "" {
		d.InstructorName = "TBA"
	}
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	OpenOnly     bool
	InstructorID string
	Department   string
}
