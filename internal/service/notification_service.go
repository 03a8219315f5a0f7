package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"go.uber.org/zap"

	"github.com/noah-isme/aims-enrollment-api/internal/models"
	"github.com/noah-isme/aims-enrollment-api/pkg/jobs"
	"github.com/noah-isme/aims-enrollment-api/pkg/mailer"
)

// Notification outcome labels.
const (
	notifyQueued  = "queued"
	notifyDropped = "dropped"
	notifySent    = "sent"
	notifyFailed  = "failed"
)

type notificationQueue interface {
	TryEnqueue(job jobs.Job) error
}

type notificationTemplate struct {
	subject *texttemplate.Template
	body    *template.Template
}

const mailLayout = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
<div style="background: #1e3a5f; padding: 20px; text-align: center; border-radius: 10px 10px 0 0;">
<h1 style="color: white; margin: 0; font-size: 24px;">AIMS</h1>
</div>
<div style="background: #f9f9f9; padding: 30px; border-radius: 0 0 10px 10px;">{{template "content" .}}</div>
</div>`

var notificationTemplates = map[models.NotificationKind][2]string{
	models.NotificationRequestToInstructor: {
		`New Enrollment Request: {{.course_name}}`,
		`<h2>New Enrollment Request</h2>
<p><strong>{{.student_name}}</strong> ({{.student_email}}) has requested enrollment in <strong>{{.course_name}}</strong> ({{.course_code}}).</p>
<p>Please sign in to approve or reject this request.</p>`,
	},
	models.NotificationRequestToAdvisor: {
		`Enrollment Pending Advisor Approval: {{.course_name}}`,
		`<h2>Enrollment Request Approved by Instructor</h2>
<p><strong>{{.student_name}}</strong>'s enrollment in <strong>{{.course_name}}</strong> has been approved by the instructor.</p>
<p>Please sign in for final approval.</p>`,
	},
	models.NotificationEnrollmentApproved: {
		`Enrollment Confirmed: {{.course_name}}`,
		`<h2>Congratulations!</h2>
<p>Your enrollment in <strong>{{.course_name}}</strong> ({{.course_code}}) has been approved.</p>
<p>You are now officially enrolled in this course.</p>`,
	},
	models.NotificationEnrollmentRejected: {
		`Enrollment Request Rejected: {{.course_name}}`,
		`<h2>Enrollment Request Rejected</h2>
<p>Unfortunately, your enrollment request for <strong>{{.course_name}}</strong> has been rejected by the {{.stage}}.</p>
{{if .remarks}}<p><strong>Reason:</strong> {{.remarks}}</p>{{end}}`,
	},
	models.NotificationOTPCode: {
		`Your AIMS login code`,
		`<h2>Your One-Time Password</h2>
<p>Use the following code to complete your login:</p>
<div style="background: #1e3a5f; color: white; font-size: 32px; font-weight: bold; letter-spacing: 8px; padding: 20px; text-align: center; border-radius: 8px;">{{.code}}</div>
<p>This code is valid for <strong>{{.ttl_minutes}} minutes</strong>. Do not share it with anyone.</p>`,
	},
}

// NotificationService renders notification intents and delivers them through queue workers.
type NotificationService struct {
	sender    mailer.Sender
	metrics   *MetricsService
	logger    *zap.Logger
	queue     notificationQueue
	templates map[models.NotificationKind]notificationTemplate
}

// NewNotificationService parses the mail templates. Attach a queue before publishing.
func NewNotificationService(sender mailer.Sender, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	templates := make(map[models.NotificationKind]notificationTemplate, len(notificationTemplates))
	for kind, src := range notificationTemplates {
		body := template.Must(template.New(string(kind)).Option("missingkey=zero").Parse(mailLayout))
		template.Must(body.New("content").Parse(src[1]))
		templates[kind] = notificationTemplate{
			subject: texttemplate.Must(texttemplate.New(string(kind) + "_subject").Option("missingkey=zero").Parse(src[0])),
			body:    body,
		}
	}
	return &NotificationService{sender: sender, metrics: metrics, logger: logger, templates: templates}
}

// AttachQueue sets the queue intents are published to.
func (s *NotificationService) AttachQueue(queue notificationQueue) {
	s.queue = queue
}

// Publish hands the intent to the delivery queue. It never blocks and never reports failure to the caller.
func (s *NotificationService) Publish(ctx context.Context, intent models.NotificationIntent) {
	kind := string(intent.Kind)
	if intent.TargetEmail == "" {
		s.logger.Warn("notification dropped: no recipient", zap.String("kind", kind), zap.String("enrollment_id", intent.EnrollmentID))
		s.metrics.RecordNotification(kind, notifyDropped)
		return
	}
	if s.queue == nil {
		s.logger.Warn("notification dropped: dispatcher not running", zap.String("kind", kind))
		s.metrics.RecordNotification(kind, notifyDropped)
		return
	}
	if err := s.queue.TryEnqueue(jobs.Job{Type: kind, Payload: intent}); err != nil {
		s.logger.Warn("notification dropped", zap.String("kind", kind), zap.String("to", intent.TargetEmail), zap.Error(err))
		s.metrics.RecordNotification(kind, notifyDropped)
		return
	}
	s.metrics.RecordNotification(kind, notifyQueued)
}

// Handle is the queue handler delivering one intent.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	intent, ok := job.Payload.(models.NotificationIntent)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	msg, err := s.Render(intent)
	if err != nil {
		s.logger.Error("render notification", zap.String("kind", string(intent.Kind)), zap.Error(err))
		s.metrics.RecordNotification(string(intent.Kind), notifyFailed)
		return nil
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", intent.Kind, intent.TargetEmail, err)
	}
	s.metrics.RecordNotification(string(intent.Kind), notifySent)
	return nil
}

// GiveUp records an intent whose delivery retries are exhausted.
func (s *NotificationService) GiveUp(job jobs.Job, err error) {
	kind := job.Type
	if intent, ok := job.Payload.(models.NotificationIntent); ok {
		kind = string(intent.Kind)
	}
	s.metrics.RecordNotification(kind, notifyFailed)
}

// Render builds the mail for an intent.
func (s *NotificationService) Render(intent models.NotificationIntent) (mailer.Message, error) {
	tpl, ok := s.templates[intent.Kind]
	if !ok {
		return mailer.Message{}, fmt.Errorf("unknown notification kind %q", intent.Kind)
	}
	data := intent.Payload
	if data == nil {
		data = map[string]string{}
	}
	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return mailer.Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := tpl.body.Execute(&body, data); err != nil {
		return mailer.Message{}, fmt.Errorf("render body: %w", err)
	}
	return mailer.Message{
		To:      []string{intent.TargetEmail},
		Subject: subject.String(),
		HTML:    body.String(),
	}, nil
}
