package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PipelineConfig tunes the invoice pipeline workers.
type PipelineConfig struct {
	AttemptCap        int           `mapstructure:"attemptCap"`
	ClaimLease        time.Duration `mapstructure:"claimLease"`
	Concurrency       int           `mapstructure:"concurrency"`
	BatchSize         int           `mapstructure:"batchSize"`
	OverdueBatchSize  int           `mapstructure:"overdueBatchSize"`
	RenderTimeout     time.Duration `mapstructure:"renderTimeout"`
	StorageTimeout    time.Duration `mapstructure:"storageTimeout"`
	NotifyTimeout     time.Duration `mapstructure:"notifyTimeout"`
	JobTimeout        time.Duration `mapstructure:"jobTimeout"`
	RunInterval       time.Duration `mapstructure:"runInterval"`
	CommissionDueDays int           `mapstructure:"commissionDueDays"`
	Templates         Templates     `mapstructure:"templates"`
}

type Templates struct {
	InvoiceSubject  string `mapstructure:"invoiceSubject"`
	InvoiceBody     string `mapstructure:"invoiceBody"`
	ReminderSubject string `mapstructure:"reminderSubject"`
	ReminderBody    string `mapstructure:"reminderBody"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		AttemptCap:        5,
		ClaimLease:        15 * time.Minute,
		Concurrency:       4,
		BatchSize:         200,
		OverdueBatchSize:  500,
		RenderTimeout:     30 * time.Second,
		StorageTimeout:    30 * time.Second,
		NotifyTimeout:     30 * time.Second,
		JobTimeout:        10 * time.Minute,
		RunInterval:       15 * time.Minute,
		CommissionDueDays: 30,
		Templates: Templates{
			InvoiceSubject:  "Invoice {{.InvoiceNumber}} from {{.TenantName}}",
			InvoiceBody:     "Dear {{.StudentName}},\n\nPlease find attached invoice {{.InvoiceNumber}} for {{.AmountDue}}, due on {{.DueDate}}.\n\nKind regards,\n{{.TenantName}}\n",
			ReminderSubject: "Reminder: invoice {{.InvoiceNumber}} due {{.DueDate}}",
			ReminderBody:    "Dear {{.StudentName}},\n\nThis is a reminder that invoice {{.InvoiceNumber}} for {{.AmountDue}} is due on {{.DueDate}}. The outstanding balance is {{.Balance}}.\n\nKind regards,\n{{.TenantName}}\n",
		},
	}
}

type PipelineConfigHolder struct {
	current atomic.Value // holds PipelineConfig
}

// NewStaticPipelineConfigHolder wraps a fixed configuration without file watching.
func NewStaticPipelineConfigHolder(cfg PipelineConfig) *PipelineConfigHolder {
	holder := &PipelineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPipelineConfigHolder(log *zap.Logger) (*PipelineConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("pipeline-config")

	v := viper.New()
	v.SetConfigName("pipeline")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/feeflow/config")
	v.AddConfigPath("/etc/feeflow")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FEEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setPipelineDefaults(v, DefaultPipelineConfig())

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg PipelineConfig
	if err := v.UnmarshalKey("pipeline", &cfg); err != nil {
		return nil, err
	}
	if err := ValidatePipelineConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPipelineConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PipelineConfig
		if err := v.UnmarshalKey("pipeline", &updated); err != nil {
			log.Warn("pipeline config reload failed", zap.Error(err))
			return
		}
		if err := ValidatePipelineConfig(updated); err != nil {
			log.Warn("invalid pipeline config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("pipeline config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PipelineConfigHolder) Get() PipelineConfig {
	return h.current.Load().(PipelineConfig)
}

func setPipelineDefaults(v *viper.Viper, d PipelineConfig) {
	v.SetDefault("pipeline.attemptCap", d.AttemptCap)
	v.SetDefault("pipeline.claimLease", d.ClaimLease)
	v.SetDefault("pipeline.concurrency", d.Concurrency)
	v.SetDefault("pipeline.batchSize", d.BatchSize)
	v.SetDefault("pipeline.overdueBatchSize", d.OverdueBatchSize)
	v.SetDefault("pipeline.renderTimeout", d.RenderTimeout)
	v.SetDefault("pipeline.storageTimeout", d.StorageTimeout)
	v.SetDefault("pipeline.notifyTimeout", d.NotifyTimeout)
	v.SetDefault("pipeline.jobTimeout", d.JobTimeout)
	v.SetDefault("pipeline.runInterval", d.RunInterval)
	v.SetDefault("pipeline.commissionDueDays", d.CommissionDueDays)
	v.SetDefault("pipeline.templates.invoiceSubject", d.Templates.InvoiceSubject)
	v.SetDefault("pipeline.templates.invoiceBody", d.Templates.InvoiceBody)
	v.SetDefault("pipeline.templates.reminderSubject", d.Templates.ReminderSubject)
	v.SetDefault("pipeline.templates.reminderBody", d.Templates.ReminderBody)
}

func ValidatePipelineConfig(cfg PipelineConfig) error {
	if cfg.AttemptCap <= 0 {
		return errors.New("pipeline.attemptCap must be positive")
	}
	if cfg.ClaimLease <= 0 {
		return errors.New("pipeline.claimLease must be positive")
	}
	if cfg.Concurrency <= 0 {
		return errors.New("pipeline.concurrency must be positive")
	}
	if cfg.BatchSize <= 0 || cfg.OverdueBatchSize <= 0 {
		return errors.New("pipeline batch sizes must be positive")
	}
	if cfg.CommissionDueDays < 0 {
		return errors.New("pipeline.commissionDueDays cannot be negative")
	}
	if strings.TrimSpace(cfg.Templates.InvoiceSubject) == "" || strings.TrimSpace(cfg.Templates.ReminderSubject) == "" {
		return errors.New("pipeline.templates subjects cannot be empty")
	}
	return nil
}
