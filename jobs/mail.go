package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/agrimart/backoffice/internal/jobs"
)

// Message is a plain-text e-mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends through a plain SMTP relay such as Mailpit or a local MTA.
type SMTPMailer struct {
	addr string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer builds an SMTPMailer for host:port.
func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		from: from,
		send: smtp.SendMail,
	}
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Body)
	return m.send(m.addr, nil, m.from, []string{msg.To}, []byte(b.String()))
}

// LogMailer writes messages to the log instead of sending them. It is used
// when no SMTP relay is configured.
type LogMailer struct {
	Logger *slog.Logger
}

// Send implements Mailer.
func (m LogMailer) Send(ctx context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail not sent, no smtp relay", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}

// MailJob renders and delivers account e-mails.
type MailJob struct {
	mailer  Mailer
	baseURL string
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewMailJob builds a MailJob.
func NewMailJob(mailer Mailer, baseURL string, logger *slog.Logger, metrics *jobmetrics.Metrics) *MailJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailJob{mailer: mailer, baseURL: strings.TrimRight(baseURL, "/"), logger: logger, metrics: metrics}
}

// Handlers returns the worker registrations for account e-mails.
func (j *MailJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskTypeVerificationEmail, Handler: j.Handle},
		{Type: TaskTypePasswordResetEmail, Handler: j.Handle},
	}
}

// Handle processes both mail task types.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(t.Type())
	var payload AccountEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Email == "" {
		j.logger.Warn("drop malformed mail task", slog.String("type", t.Type()))
		return tracker.End(fmt.Errorf("jobs: malformed %s payload: %w", t.Type(), asynq.SkipRetry))
	}
	msg, err := j.compose(t.Type(), payload)
	if err != nil {
		return tracker.End(fmt.Errorf("%w: %v", asynq.SkipRetry, err))
	}
	if err := j.mailer.Send(ctx, msg); err != nil {
		j.logger.Warn("send mail", slog.String("type", t.Type()), slog.String("account_id", payload.AccountID), slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddDelivered(t.Type())
	j.logger.Info("mail sent", slog.String("type", t.Type()), slog.String("account_id", payload.AccountID))
	return tracker.End(nil)
}

func (j *MailJob) compose(taskType string, p AccountEmailPayload) (Message, error) {
	name := p.Name
	if name == "" {
		name = p.Email
	}
	loginURL := j.baseURL + "/auth/login"
	switch taskType {
	case TaskTypeVerificationEmail:
		return Message{
			To:      p.Email,
			Subject: "Verify your back-office account",
			Body: fmt.Sprintf("Hi %s,\r\n\r\nYour back-office account is waiting for verification. "+
				"Sign in at %s to confirm your e-mail address.\r\n", name, loginURL),
		}, nil
	case TaskTypePasswordResetEmail:
		return Message{
			To:      p.Email,
			Subject: "Reset your back-office password",
			Body: fmt.Sprintf("Hi %s,\r\n\r\nAn administrator requested a password reset for your account. "+
				"Sign in at %s and choose a new password. If you did not expect this, contact your administrator.\r\n", name, loginURL),
		}, nil
	}
	return Message{}, fmt.Errorf("jobs: unsupported mail task %s", taskType)
}
