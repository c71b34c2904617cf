package services

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

// Message is one outbound email. From and To accept "Name <addr>" or a bare address.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type sendGridMailer struct {
	client  *sendgrid.Client
	sandbox bool
}

func NewSendGridMailer(apiKey string, sandbox bool) Mailer {
	return &sendGridMailer{client: sendgrid.NewSendClient(apiKey), sandbox: sandbox}
}

func (m *sendGridMailer) Send(ctx context.Context, msg Message) error {
	from, err := toSendGridEmail(msg.From)
	if err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	to, err := toSendGridEmail(msg.To)
	if err != nil {
		return fmt.Errorf("invalid to address: %w", err)
	}

	message := sgmail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)
	if m.sandbox {
		ms := sgmail.NewMailSettings()
		ms.SetSandboxMode(sgmail.NewSetting(true))
		message.MailSettings = ms
	}

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("%w: failed to send email via sendgrid: %v", utils.ErrExternalServiceFailure, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: sendgrid returned %d: %s", utils.ErrExternalServiceFailure, resp.StatusCode, resp.Body)
	}
	return nil
}

func toSendGridEmail(addr string) (*sgmail.Email, error) {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	return sgmail.NewEmail(parsed.Name, parsed.Address), nil
}
