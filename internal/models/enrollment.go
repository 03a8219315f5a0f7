package models

import (
	"errors"
	"time"
)

// EnrollmentStatus represents the position of a request in the approval pipeline.
type EnrollmentStatus string

// Possible enrollment statuses. Approved and rejected are terminal.
const (
	EnrollmentStatusPendingInstructor EnrollmentStatus = "pending_instructor"
	EnrollmentStatusPendingAdvisor    EnrollmentStatus = "pending_advisor"
	EnrollmentStatusApproved          EnrollmentStatus = "approved"
	EnrollmentStatusRejected          EnrollmentStatus = "rejected"
)

// ApprovalStage names one of the two sequential decision points.
type ApprovalStage string

const (
	StageInstructor ApprovalStage = "instructor"
	StageAdvisor    ApprovalStage = "advisor"
)

// Decision is the verdict submitted at a stage.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ErrIllegalTransition reports an action against a status outside its guard.
var ErrIllegalTransition = errors.New("illegal enrollment transition")

// Valid reports whether s is one of the known statuses.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPendingInstructor, EnrollmentStatusPendingAdvisor, EnrollmentStatusApproved, EnrollmentStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentStatusApproved || s == EnrollmentStatusRejected
}

// Valid reports whether the decision is approve or reject.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Approved converts the decision into the stored tri-state flag value.
func (d Decision) Approved() bool {
	return d == DecisionApprove
}

// Guard returns the status an enrollment must hold for the stage to act on it.
func (s ApprovalStage) Guard() EnrollmentStatus {
	switch s {
	case StageInstructor:
		return EnrollmentStatusPendingInstructor
	case StageAdvisor:
		return EnrollmentStatusPendingAdvisor
	}
	return ""
}

// Transition returns the status reached when stage submits decision from s.
func (s EnrollmentStatus) Transition(stage ApprovalStage, decision Decision) (EnrollmentStatus, error) {
	guard := stage.Guard()
	if guard == "" || !decision.Valid() || s != guard {
		return s, ErrIllegalTransition
	}
	if decision == DecisionReject {
		return EnrollmentStatusRejected, nil
	}
	if stage == StageInstructor {
		return EnrollmentStatusPendingAdvisor, nil
	}
	return EnrollmentStatusApproved, nil
}

// DefaultRemarks is the remark recorded when the actor supplies none.
func DefaultRemarks(stage ApprovalStage, decision Decision) string {
	verb := "Approved"
	if decision == DecisionReject {
		verb = "Rejected"
	}
	return verb + " by " + string(stage)
}

// AdvisorVisibleStatuses are the statuses an advisor's queue shows.
var AdvisorVisibleStatuses = []EnrollmentStatus{
	EnrollmentStatusPendingAdvisor,
	EnrollmentStatusApproved,
	EnrollmentStatusRejected,
}

// Enrollment is a student's request to join a course, with both stage decisions.
type Enrollment struct {
	ID                 string           `db:"id" json:"id"`
	StudentID          string           `db:"student_id" json:"student_id"`
	CourseID           string           `db:"course_id" json:"course_id"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	InstructorApproval *bool            `db:"instructor_approval" json:"instructor_approval"`
	InstructorRemarks  string           `db:"instructor_remarks" json:"instructor_remarks"`
	InstructorActionAt *time.Time       `db:"instructor_action_at" json:"instructor_action_at,omitempty"`
	AdvisorID          *string          `db:"advisor_id" json:"advisor_id,omitempty"`
	AdvisorApproval    *bool            `db:"advisor_approval" json:"advisor_approval"`
	AdvisorRemarks     string           `db:"advisor_remarks" json:"advisor_remarks"`
	AdvisorActionAt    *time.Time       `db:"advisor_action_at" json:"advisor_action_at,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// Apply copies a recorded stage decision onto the enrollment.
func (e *Enrollment) Apply(d StageDecision) {
	approved := d.Decision.Approved()
	at := d.At
	switch d.Stage {
	case StageInstructor:
		e.InstructorApproval = &approved
		e.InstructorRemarks = d.Remarks
		e.InstructorActionAt = &at
	case StageAdvisor:
		e.AdvisorApproval = &approved
		e.AdvisorRemarks = d.Remarks
		e.AdvisorActionAt = &at
		if e.AdvisorID == nil && d.AdvisorID != "" {
			advisorID := d.AdvisorID
			e.AdvisorID = &advisorID
		}
	}
	e.Status = d.To
	e.UpdatedAt = at
}

// StageDecision is one guarded write: the enrollment moves From -> To recording the verdict.
type StageDecision struct {
	EnrollmentID string
	Stage        ApprovalStage
	Decision     Decision
	Remarks      string
	From         EnrollmentStatus
	To           EnrollmentStatus
	At           time.Time
	// AdvisorID is recorded at the advisor stage when the request had no advisor yet.
	AdvisorID string
}

// EnrollmentDetail enriches Enrollment with student, course and advisor info.
type EnrollmentDetail struct {
	Enrollment
	StudentName     string  `db:"student_name" json:"student_name"`
	StudentEmail    string  `db:"student_email" json:"student_email"`
	CourseCode      string  `db:"course_code" json:"course_code"`
	CourseName      string  `db:"course_name" json:"course_name"`
	InstructorID    string  `db:"instructor_id" json:"instructor_id"`
	InstructorName  string  `db:"instructor_name" json:"instructor_name"`
	InstructorEmail string  `db:"instructor_email" json:"instructor_email"`
	AdvisorName     *string `db:"advisor_name" json:"advisor_name,omitempty"`
	AdvisorEmail    *string `db:"advisor_email" json:"advisor_email,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID    string
	CourseID     string
	InstructorID string
	AdvisorID    string
	Statuses     []EnrollmentStatus
}
