package notification

import (
	"github.com/openbilling/credits/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewFromConfig),
	fx.Provide(provideNotifier),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if !cfg.Mail.Enabled() {
		log.Named("notification").Info("smtp not configured, notifications disabled")
		return &NoOpProvider{}
	}
	return NewSMTP(SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SMTPUser,
		Password: cfg.Mail.SMTPPassword,
		From:     cfg.Mail.From,
	})
}

func provideNotifier(provider Provider, cfg config.Config, log *zap.Logger) *Notifier {
	return NewNotifier(provider, cfg.Mail.GovernanceAddr, cfg.Mail.ToOverwrite, log.Named("notification"))
}
