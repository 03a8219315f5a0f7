package models

import "time"

// NotificationKind identifies the message template for an intent.
type NotificationKind string

const (
	NotificationRequestToInstructor NotificationKind = "request_to_instructor"
	NotificationRequestToAdvisor    NotificationKind = "request_to_advisor"
	NotificationEnrollmentApproved  NotificationKind = "enrollment_approved"
	NotificationEnrollmentRejected  NotificationKind = "enrollment_rejected"
	NotificationOTPCode             NotificationKind = "otp_code"
)

// NotificationIntent describes a message to send. It is emitted by the workflow and delivered out of band.
type NotificationIntent struct {
	TargetEmail  string            `json:"target_email"`
	Kind         NotificationKind  `json:"kind"`
	Payload      map[string]string `json:"payload"`
	EnrollmentID string            `json:"enrollment_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
