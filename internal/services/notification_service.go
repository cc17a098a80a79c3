package services

import (
	"context"
	"database/sql"
	"fmt"
	"html/template"
	"strings"

	"questionbank/internal/config"
	"questionbank/internal/models"
	"questionbank/internal/observability"
	"questionbank/internal/serviceinterfaces"
	contextutils "questionbank/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/mail.v2"
)

// EmailNotifier delivers transition notifications to the question's creator
// over SMTP. It implements the serviceinterfaces.Notifier hook.
type EmailNotifier struct {
	cfg    *config.Config
	logger *observability.Logger
	dialer *mail.Dialer
	db     *sql.DB
}

// Ensure EmailNotifier implements the Notifier interface
var _ serviceinterfaces.Notifier = (*EmailNotifier)(nil)

// NewEmailNotifier creates a new EmailNotifier instance
func NewEmailNotifier(cfg *config.Config, logger *observability.Logger, db *sql.DB) *EmailNotifier {
	var dialer *mail.Dialer
	if cfg.Email.Enabled && cfg.Email.SMTP.Host != "" {
		dialer = mail.NewDialer(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
		)
		logger.Info(context.Background(), "Email notifier configured", map[string]interface{}{
			"smtp_host":     cfg.Email.SMTP.Host,
			"smtp_port":     cfg.Email.SMTP.Port,
			"smtp_username": cfg.Email.SMTP.Username,
			"smtp_password": contextutils.MaskSecret(cfg.Email.SMTP.Password),
		})
	}

	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
		dialer: dialer,
		db:     db,
	}
}

// IsEnabled returns whether email functionality is enabled
func (n *EmailNotifier) IsEnabled() bool {
	return n.cfg.Email.Enabled && n.cfg.Email.SMTP.Host != ""
}

// NotifyTransition emails the question's creator about a committed status
// transition. Reject and request_changes carry the same wording; the
// distinction lives in the audit trail, not the notification.
func (n *EmailNotifier) NotifyTransition(ctx context.Context, event *models.TransitionEvent) (err error) {
	ctx, span := otel.Tracer("notification-service").Start(ctx, "NotifyTransition",
		trace.WithAttributes(
			attribute.Int("question.id", event.QuestionID),
			attribute.String("question.from_status", string(event.FromStatus)),
			attribute.String("question.to_status", string(event.ToStatus)),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !n.IsEnabled() {
		n.logger.Debug(ctx, "Email disabled, skipping transition notification", map[string]interface{}{
			"question_id": event.QuestionID,
		})
		return nil
	}

	var title string
	var email sql.NullString
	err = n.db.QueryRowContext(ctx, `
		SELECT q.title, u.email
		FROM questions q
		JOIN users u ON u.id = q.created_by
		WHERE q.id = $1
	`, event.QuestionID).Scan(&title, &email)
	if err != nil {
		return contextutils.WrapError(err, "failed to look up question creator")
	}
	if !email.Valid || email.String == "" {
		n.logger.Debug(ctx, "Creator has no email address, skipping transition notification", map[string]interface{}{
			"question_id": event.QuestionID,
		})
		return nil
	}

	subject := fmt.Sprintf("Question %q is now %s", title, event.ToStatus)
	content, err := n.generateTransitionContent(map[string]interface{}{
		"Title":      title,
		"FromStatus": string(event.FromStatus),
		"ToStatus":   string(event.ToStatus),
		"AppBaseURL": n.cfg.Server.AppBaseURL,
		"QuestionID": event.QuestionID,
	})
	if err != nil {
		return contextutils.WrapError(err, "failed to generate notification content")
	}

	m := mail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", n.cfg.Email.SMTP.FromName, n.cfg.Email.SMTP.FromAddress))
	m.SetHeader("To", email.String)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", content)

	if err = n.dialer.DialAndSend(m); err != nil {
		n.logger.Error(ctx, "Failed to send transition notification", err, map[string]interface{}{
			"question_id": event.QuestionID,
			"to_status":   string(event.ToStatus),
		})
		return contextutils.WrapError(err, "failed to send transition notification")
	}

	n.logger.Info(ctx, "Transition notification sent", map[string]interface{}{
		"question_id": event.QuestionID,
		"to_status":   string(event.ToStatus),
	})
	return nil
}

// generateTransitionContent renders the notification email body
func (n *EmailNotifier) generateTransitionContent(data map[string]interface{}) (string, error) {
	const templateStr = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Question Status Update</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #2196F3; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 20px; }
        .button { display: inline-block; background-color: #2196F3; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; margin: 20px 0; }
        .footer { background-color: #eee; padding: 15px; text-align: center; font-size: 12px; color: #666; border-radius: 0 0 5px 5px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Question Status Update</h1>
        </div>
        <div class="content">
            <h2>{{.Title}}</h2>
            <p>Your question moved from <strong>{{.FromStatus}}</strong> to <strong>{{.ToStatus}}</strong>.</p>
            <div style="text-align: center;">
                <a href="{{.AppBaseURL}}/questions/{{.QuestionID}}" class="button">View Question</a>
            </div>
        </div>
        <div class="footer">
            <p>This email was sent by the question bank. You are receiving it because you authored this question.</p>
        </div>
    </div>
</body>
</html>`

	tmpl, err := template.New("transition").Parse(templateStr)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to parse template")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", contextutils.WrapError(err, "failed to execute template")
	}

	return buf.String(), nil
}

// LogNotifier is a delivery-free Notifier that just records transitions in
// the log. Used when email is not configured and in tests.
type LogNotifier struct {
	logger *observability.Logger
}

// Ensure LogNotifier implements the Notifier interface
var _ serviceinterfaces.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a new LogNotifier instance
func NewLogNotifier(logger *observability.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// IsEnabled always reports true; logging has no configuration to miss
func (n *LogNotifier) IsEnabled() bool {
	return true
}

// NotifyTransition logs the transition
func (n *LogNotifier) NotifyTransition(ctx context.Context, event *models.TransitionEvent) error {
	n.logger.Info(ctx, "Question transition", map[string]interface{}{
		"question_id": event.QuestionID,
		"from_status": string(event.FromStatus),
		"to_status":   string(event.ToStatus),
		"actor_id":    event.ActorID,
	})
	return nil
}
