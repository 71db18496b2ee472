// Package notify emails ingestion run reports to operators.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"

	"pricewise-backend/internal/components/events"
	"pricewise-backend/internal/components/telemetry"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("pricewise.notify")

const report_smtp_send = "smtp.send"

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	Recipients   []string `json:"recipients"`
	// OnlyFailures skips reports of runs that completed without item failures.
	OnlyFailures bool `json:"only_failures"`
}

var reportTemplate = template.Must(template.New("report").Parse(`Ingestion run {{.OperationID}} for {{.ShopName}} finished as {{.State}}.

Processed: {{.Processed}} of {{.Total}}
Pages: {{.Pages}}
Started: {{.StartedAt.Format "2006-01-02 15:04:05 MST"}}
Finished: {{.FinishedAt.Format "2006-01-02 15:04:05 MST"}}
{{- if .Error}}

Error: {{.Error}}
{{- end}}
`))

// SMTPNotifier is an events.Publisher that emails a run report.
type SMTPNotifier struct {
	config SmtpConfig
	tel    telemetry.API
}

func NewSMTPNotifier(config SmtpConfig, tel telemetry.API) SMTPNotifier {
	return SMTPNotifier{
		config: config,
		tel:    telemetry.NewScopedAPI("notify", tel),
	}
}

func subject(event events.RunFinished) string {
	return fmt.Sprintf("[pricewise] %s ingestion %s (%d/%d)", event.ShopName, event.State, event.Processed, event.Total)
}

func (n SMTPNotifier) PublishRunFinished(ctx context.Context, event events.RunFinished) error {
	if len(n.config.Recipients) == 0 {
		return nil
	}
	if n.config.OnlyFailures && event.Error == "" && event.Processed == event.Total {
		return nil
	}

	_, span := tracer.Start(ctx, "PublishRunFinished")
	defer span.End()

	var body bytes.Buffer
	err := reportTemplate.Execute(&body, event)
	if err != nil {
		return err
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Pricewise <%s>", n.config.EmailAddress)
	mail.To = n.config.Recipients
	mail.Subject = subject(event)
	mail.Text = body.Bytes()

	addr := fmt.Sprintf("%s:%d", n.config.Server, n.config.Port)
	err = mail.Send(
		addr,
		smtp.PlainAuth("", n.config.EmailAddress, n.config.Password, n.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		n.tel.ReportBroken(report_smtp_send, err, event.OperationID)
		return err
	}
	return nil
}
