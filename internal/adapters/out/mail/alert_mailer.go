package mail

import (
	"context"
	"fmt"
	"log"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// AlertMailer sends operator reconciliation alerts through SendGrid.
// Implements verify.AlertPort.
type AlertMailer struct {
	apiKey string
	from   string
	to     string
}

func NewAlertMailer(apiKey, from, to string) *AlertMailer {
	return &AlertMailer{apiKey: apiKey, from: from, to: to}
}

// Send emails subject/body to the configured operator address.
func (m *AlertMailer) Send(ctx context.Context, subject, body string) error {
	if m.apiKey == "" {
		return fmt.Errorf("sendgrid api key is empty")
	}
	if m.from == "" {
		return fmt.Errorf("from address is empty")
	}
	if m.to == "" {
		return fmt.Errorf("to address is empty")
	}

	fromEmail := mail.NewEmail("Scrapworks", m.from)
	toEmail := mail.NewEmail("", m.to)

	plainTextContent := body
	htmlContent := fmt.Sprintf("<pre>%s</pre>", body)

	message := mail.NewSingleEmail(
		fromEmail,
		subject,
		toEmail,
		plainTextContent,
		htmlContent,
	)

	client := sendgrid.NewSendClient(m.apiKey)

	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}

	if response.StatusCode >= 400 {
		log.Printf("[sendgrid] error status=%d, body=%s", response.StatusCode, response.Body)
		return fmt.Errorf(
			"sendgrid send failed: status=%d, body=%s",
			response.StatusCode,
			response.Body,
		)
	}

	log.Printf("[sendgrid] alert sent: status=%d to=%s subject=%s",
		response.StatusCode, m.to, subject)

	return nil
}
