package email

import (
	"github.com/smallbiznis/feeflow/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.Notifier.Driver == config.NotifierDriverNoop {
		return &NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     cfg.Notifier.Host,
		Port:     cfg.Notifier.Port,
		Username: cfg.Notifier.Username,
		Password: cfg.Notifier.Password,
		From:     cfg.Notifier.From,
		FromName: cfg.Notifier.FromName,
	})
}
