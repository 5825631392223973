// Package mailer delivers plain-text notifications through an ordered list of
// providers, falling back to the next one when a provider fails or times out.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultAttemptTimeout bounds one provider attempt.
const DefaultAttemptTimeout = 10 * time.Second

// Message is one outbound notification.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Provider is one delivery channel.
type Provider interface {
	Name() string
	// Configured reports whether the provider has the credentials it needs.
	// Unconfigured providers are skipped, never attempted.
	Configured() bool
	Send(ctx context.Context, msg Message) error
}

// Gateway tries its providers in order, once per call.
type Gateway struct {
	from      string
	providers []Provider
	timeout   time.Duration
	log       *slog.Logger
}

func NewGateway(from string, timeout time.Duration, log *slog.Logger, providers ...Provider) *Gateway {
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{from: from, providers: providers, timeout: timeout, log: log}
}

// Configured reports whether at least one provider can attempt a send.
func (g *Gateway) Configured() bool {
	for _, p := range g.providers {
		if p.Configured() {
			return true
		}
	}
	return false
}

// Send returns true on the first provider that accepts msg. It returns false
// when every configured provider failed or none is configured.
func (g *Gateway) Send(ctx context.Context, to, subject, body string) bool {
	msg := Message{From: g.from, To: to, Subject: subject, Body: body}
	attempted := 0
	for _, p := range g.providers {
		if !p.Configured() {
			continue
		}
		attempted++
		err := g.attempt(ctx, p, msg)
		if err == nil {
			g.log.Info("notification sent", "provider", p.Name(), "to", to)
			return true
		}
		g.log.Warn("provider failed", "provider", p.Name(), "to", to, "err", err)
	}
	if attempted == 0 {
		g.log.Error("no mail provider configured", "to", to)
	}
	return false
}

var errAttemptTimeout = errors.New("provider attempt timed out")

// attempt runs one send with its own deadline. A provider that ignores its
// context still loses once the deadline passes.
func (g *Gateway) attempt(ctx context.Context, p Provider, msg Message) (err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("provider panic: %v", r)
			}
		}()
		done <- p.Send(ctx, msg)
	}()

	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errAttemptTimeout
		}
		return ctx.Err()
	}
}
