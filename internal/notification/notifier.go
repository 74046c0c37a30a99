package notification

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ShouldNotify reports whether the balance crossed the warning threshold
// with this update: strictly above granted*fraction before, at or below
// it after. Exact decimal comparison, so the warning fires exactly once
// per crossing.
func ShouldNotify(prev, next, granted, fraction decimal.Decimal) bool {
	threshold := granted.Mul(fraction)
	return prev.GreaterThan(threshold) && next.LessThanOrEqual(threshold)
}

// Payload carries everything the low-credits message needs.
type Payload struct {
	Project  string
	Contacts []string
	Granted  decimal.Decimal
	Balance  decimal.Decimal
}

var (
	subjectTmpl = template.Must(template.New("subject").Parse(
		`Credits: your project {{.Project}} is running low`))
	bodyTmpl = template.Must(template.New("body").Parse(
		`Dear user,

more than half of the credits granted to your project {{.Project}} have been
used. Out of {{.Granted}} granted credits {{.Balance}} are left.

If you expect your usage to continue at the current rate, please get in
touch with your cloud governance contact to discuss a credit extension.

This is an automated message, replies are not monitored.
`))
)

// Notifier applies recipient policy and delivers the low-credits warning.
type Notifier struct {
	provider       Provider
	governanceAddr string
	toOverwrite    string
	log            *zap.Logger
}

func NewNotifier(provider Provider, governanceAddr, toOverwrite string, log *zap.Logger) *Notifier {
	return &Notifier{
		provider:       provider,
		governanceAddr: strings.TrimSpace(governanceAddr),
		toOverwrite:    strings.TrimSpace(toOverwrite),
		log:            log,
	}
}

// Notify renders and sends the warning mail. Failures are returned for
// logging only; a lost notification never rolls back a billing.
func (n *Notifier) Notify(ctx context.Context, p Payload) error {
	to := p.Contacts
	var cc []string
	if n.governanceAddr != "" {
		cc = []string{n.governanceAddr}
	}
	if len(to) == 0 {
		// entity has no contacts on file, fall back to governance
		to = cc
		cc = nil
	}
	if n.toOverwrite != "" {
		to = []string{n.toOverwrite}
		cc = nil
	}
	if len(to) == 0 {
		return fmt.Errorf("project %s has no notifiable contacts", p.Project)
	}

	subject, err := render(subjectTmpl, p)
	if err != nil {
		return err
	}
	body, err := render(bodyTmpl, p)
	if err != nil {
		return err
	}

	if err := n.provider.Send(ctx, to, cc, subject, body); err != nil {
		return fmt.Errorf("send low-credits notification for %s: %w", p.Project, err)
	}

	n.log.Info("low-credits notification sent",
		zap.String("project", p.Project),
		zap.String("balance", p.Balance.String()),
	)
	return nil
}

func render(tmpl *template.Template, p Payload) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, p); err != nil {
		return "", fmt.Errorf("render %s template: %w", tmpl.Name(), err)
	}
	return b.String(), nil
}
