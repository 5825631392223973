package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	gomail "github.com/wneessen/go-mail"
)

// SMTPProvider sends over implicit TLS (port 465 by default) with PLAIN auth.
type SMTPProvider struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (p *SMTPProvider) Name() string { return "smtp" }

func (p *SMTPProvider) Configured() bool {
	return p.Host != "" && p.Username != "" && p.Password != ""
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)

	port := p.Port
	if port == 0 {
		port = 465
	}
	opts := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(p.Username),
		gomail.WithPassword(p.Password),
	}
	if port == 465 {
		opts = append(opts, gomail.WithSSL())
	}
	c, err := gomail.NewClient(p.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// SendGridProvider uses the SendGrid v3 HTTP API. It exists for hosts that
// block outbound SMTP.
type SendGridProvider struct {
	APIKey string
}

func (p *SendGridProvider) Name() string { return "sendgrid" }

func (p *SendGridProvider) Configured() bool { return p.APIKey != "" }

func (p *SendGridProvider) Send(ctx context.Context, msg Message) error {
	m := sgmail.NewSingleEmail(
		sgmail.NewEmail("", msg.From),
		msg.Subject,
		sgmail.NewEmail("", msg.To),
		msg.Body,
		"",
	)
	resp, err := sendgrid.NewSendClient(p.APIKey).SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: http %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// SESAPI is the subset of the SES v2 client the provider calls.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESProvider sends through Amazon SES v2.
type SESProvider struct {
	Client SESAPI
}

func (p *SESProvider) Name() string { return "ses" }

func (p *SESProvider) Configured() bool { return p.Client != nil }

func (p *SESProvider) Send(ctx context.Context, msg Message) error {
	_, err := p.Client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &sestypes.Destination{ToAddresses: []string{msg.To}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

// LogProvider only logs the message. Dev setups use it so dispatch can be
// exercised without credentials; the body is left out of the log because it
// names the target.
type LogProvider struct {
	Log *slog.Logger
}

func (p *LogProvider) Name() string { return "log" }

func (p *LogProvider) Configured() bool { return true }

func (p *LogProvider) Send(_ context.Context, msg Message) error {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("mail (log only)", "from", msg.From, "to", msg.To, "subject", msg.Subject)
	return nil
}
