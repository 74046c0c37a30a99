package notification

import "context"

// Provider delivers notification mail.
type Provider interface {
	Send(ctx context.Context, to, cc []string, subject, body string) error
}

// NoOpProvider swallows every notification. Used when SMTP is not
// configured.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to, cc []string, subject, body string) error {
	return nil
}
