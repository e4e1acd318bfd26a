package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type sendgridMailer struct {
	key  string
	from *sgmail.Email
	log  *zerolog.Logger
}

func NewSendgridMailer(cfg Config, log *zerolog.Logger) Mailer {
	return &sendgridMailer{
		key:  cfg.SendgridAPIKey,
		from: sgmail.NewEmail("", cfg.From),
		log:  log,
	}
}

func (m *sendgridMailer) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail("", msg.To))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	v3.AddContent(sgmail.NewContent("text/plain", msg.Body))
	return v3
}

func (m *sendgridMailer) Send(_ context.Context, msg Message) error {
	req := sendgrid.GetRequest(m.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		m.log.Warn().Err(err).Str("email", msg.To).Msg("sendgrid request failed")
		return fmt.Errorf("send email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		m.log.Warn().Int("status", res.StatusCode).Str("body", res.Body).Msg("sendgrid rejected email")
		return fmt.Errorf("send email: sendgrid status %d", res.StatusCode)
	}
	m.log.Info().Str("email", msg.To).Str("subject", msg.Subject).Msg("email sent")
	return nil
}
