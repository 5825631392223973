package app

import (
	"context"
	"fmt"
	"log/slog"

	"example.com/killerkiss/internal/config"
	"example.com/killerkiss/internal/mailer"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

// newGateway builds the providers in MAIL_PROVIDERS order. Providers without
// credentials stay in the list; the gateway skips them.
func newGateway(ctx context.Context, cfg config.Mail, log *slog.Logger) (*mailer.Gateway, error) {
	var providers []mailer.Provider
	for _, name := range cfg.Providers {
		switch name {
		case "sendgrid":
			providers = append(providers, &mailer.SendGridProvider{APIKey: cfg.SendGridAPIKey})
		case "smtp":
			providers = append(providers, &mailer.SMTPProvider{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
			})
		case "ses":
			p := &mailer.SESProvider{}
			if cfg.SESRegion != "" {
				awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SESRegion))
				if err != nil {
					return nil, fmt.Errorf("aws config: %w", err)
				}
				p.Client = sesv2.NewFromConfig(awsCfg)
			}
			providers = append(providers, p)
		default:
			return nil, fmt.Errorf("unknown mail provider %q", name)
		}
	}
	if cfg.LogOnly {
		providers = append(providers, &mailer.LogProvider{Log: log})
	}

	g := mailer.NewGateway(cfg.From, cfg.SendTimeout, log, providers...)
	if !g.Configured() {
		log.Warn("no mail provider configured; every delivery will fail")
	}
	return g, nil
}
