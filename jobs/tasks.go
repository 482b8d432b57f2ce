package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/preventa/preventa/internal/mail"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// EmailAttachment is a file carried inside a send-email task. Content is
// base64-encoded by encoding/json automatically.
type EmailAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To          string            `json:"to"`
	Subject     string            `json:"subject"`
	HTMLBody    string            `json:"html_body"`
	Attachments []EmailAttachment `json:"attachments,omitempty"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// Sender delivers an email; satisfied by *mail.Mailer.
type Sender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// EmailJob processes TaskTypeSendEmail tasks.
type EmailJob struct {
	sender  Sender
	logger  *slog.Logger
	metrics *Metrics
}

// NewEmailJob constructs the handler.
func NewEmailJob(sender Sender, logger *slog.Logger) *EmailJob {
	return &EmailJob{sender: sender, logger: logger, metrics: NewMetrics(nil)}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *EmailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	defer func(tr *Tracker) { err = tr.End(err) }(j.metrics.Track(TaskTypeSendEmail))

	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	msg := mail.Message{
		To:       payload.To,
		Subject:  payload.Subject,
		HTMLBody: payload.HTMLBody,
	}
	for _, a := range payload.Attachments {
		msg.Attachments = append(msg.Attachments, mail.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     a.Content,
		})
	}
	if err := j.sender.Send(ctx, msg); err != nil {
		j.logger.Error("send email", slog.String("to", payload.To), slog.Any("error", err))
		return err
	}
	return nil
}
