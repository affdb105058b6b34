package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/fenger067850/todo-manager/internal/config"
	"github.com/fenger067850/todo-manager/internal/model"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 通过 SMTP 发送提醒邮件。
type EmailNotifier struct {
	cfg    config.EmailConfig
	logger *slog.Logger
	send   func(m *gomail.Message) error
}

// NewEmailNotifier 创建邮件通知器。
func NewEmailNotifier(cfg config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	n := &EmailNotifier{cfg: cfg, logger: logger}
	n.send = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
		return d.DialAndSend(m)
	}
	return n
}

func (n *EmailNotifier) NotifyReminder(ctx context.Context, r *model.PendingReminder) error {
	if !n.cfg.Enabled() {
		n.logger.Warn("email config missing, skip notification")
		return nil
	}
	if strings.TrimSpace(r.UserEmail) == "" {
		n.logger.Warn("email recipient empty, skip notification", slog.String("reminder_id", r.ID))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", r.UserEmail)
	m.SetHeader("Subject", "[Todo] "+r.TodoTitle)
	m.SetBody("text/html", buildHTMLBody(r))

	if err := n.send(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("reminder email sent", slog.String("to", r.UserEmail), slog.String("reminder_id", r.ID))
	return nil
}

func buildHTMLBody(r *model.PendingReminder) string {
	due := "-"
	if r.TodoDueDate != nil {
		due = r.TodoDueDate.UTC().Format("2006-01-02 15:04 MST")
	}
	category := ""
	if r.CategoryName != nil {
		color := "#6b7280"
		if r.CategoryColor != nil {
			color = *r.CategoryColor
		}
		category = fmt.Sprintf(`<span style="color:%s;">● %s</span>`,
			html.EscapeString(color), html.EscapeString(*r.CategoryName))
	}
	description := ""
	if r.TodoDescription != nil {
		description = fmt.Sprintf(`<p style="color:#374151;">%s</p>`, html.EscapeString(*r.TodoDescription))
	}

	const template = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8" /></head>
<body style="font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937;">
  <div style="max-width: 560px; margin: 24px auto; background: #ffffff; border-radius: 12px; border: 1px solid #e5e7eb; padding: 20px;">
    <p>Hi %s,</p>
    <h2 style="margin: 8px 0;">%s</h2>
    <p style="font-size: 16px;">%s</p>
    %s
    <p>Due: <strong>%s</strong> %s</p>
  </div>
</body>
</html>`

	return fmt.Sprintf(template,
		html.EscapeString(r.UserName),
		html.EscapeString(r.TodoTitle),
		html.EscapeString(MessageOf(r)),
		description,
		due,
		category,
	)
}
