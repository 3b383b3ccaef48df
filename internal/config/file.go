package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with pointer fields so that only keys present in
// the YAML file override the defaults. Durations are strings in
// time.ParseDuration syntax.
type fileConfig struct {
	Interval      *string `yaml:"interval"`
	UtilThreshold *int    `yaml:"util_threshold"`
	MemThreshold  *int64  `yaml:"mem_threshold_mib"`
	JSONOutput    *bool   `yaml:"json"`
	AlertCooldown *string `yaml:"alert_cooldown"`

	SMIPath    *string `yaml:"smi_path"`
	SMITimeout *string `yaml:"smi_timeout"`

	HealthPort     *int  `yaml:"health_port"`
	DebugEndpoints *bool `yaml:"debug_endpoints"`
	CloudMetadata  *bool `yaml:"cloud_metadata"`

	Mail *fileMailConfig `yaml:"mail"`
}

type fileMailConfig struct {
	Enabled    *bool    `yaml:"enabled"`
	QueueSize  *int     `yaml:"queue_size"`
	MaxRetries *int     `yaml:"max_retries"`
	Timeout    *string  `yaml:"timeout"`
	Host       *string  `yaml:"smtp_host"`
	Port       *int     `yaml:"smtp_port"`
	User       *string  `yaml:"smtp_user"`
	Pass       *string  `yaml:"smtp_pass"`
	Sender     *string  `yaml:"sender"`
	Recipients []string `yaml:"recipients"`
	SSL        *bool    `yaml:"ssl"`
	STARTTLS   *bool    `yaml:"starttls"`
}

// applyFile overlays values from a YAML config file onto cfg.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := setDuration(&cfg.Interval, fc.Interval); err != nil {
		return fmt.Errorf("config: %s: interval: %w", path, err)
	}
	setInt(&cfg.UtilThresholdPct, fc.UtilThreshold)
	setInt64(&cfg.MemThresholdMiB, fc.MemThreshold)
	setBool(&cfg.JSONOutput, fc.JSONOutput)
	if err := setDuration(&cfg.AlertCooldown, fc.AlertCooldown); err != nil {
		return fmt.Errorf("config: %s: alert_cooldown: %w", path, err)
	}

	setString(&cfg.SMIPath, fc.SMIPath)
	if err := setDuration(&cfg.SMITimeout, fc.SMITimeout); err != nil {
		return fmt.Errorf("config: %s: smi_timeout: %w", path, err)
	}

	setInt(&cfg.HealthPort, fc.HealthPort)
	setBool(&cfg.DebugEndpoints, fc.DebugEndpoints)
	setBool(&cfg.CloudMetadata, fc.CloudMetadata)

	if fc.Mail != nil {
		setBool(&cfg.MailEnabled, fc.Mail.Enabled)
		setInt(&cfg.MailQueueSize, fc.Mail.QueueSize)
		setInt(&cfg.MailMaxRetries, fc.Mail.MaxRetries)
		if err := setDuration(&cfg.MailTimeout, fc.Mail.Timeout); err != nil {
			return fmt.Errorf("config: %s: mail.timeout: %w", path, err)
		}
		setString(&cfg.SMTPHost, fc.Mail.Host)
		setInt(&cfg.SMTPPort, fc.Mail.Port)
		setString(&cfg.SMTPUser, fc.Mail.User)
		setString(&cfg.SMTPPass, fc.Mail.Pass)
		setString(&cfg.SMTPSender, fc.Mail.Sender)
		if len(fc.Mail.Recipients) > 0 {
			cfg.Recipients = fc.Mail.Recipients
		}
		setBool(&cfg.SMTPSSL, fc.Mail.SSL)
		setBool(&cfg.SMTPSTARTTLS, fc.Mail.STARTTLS)
	}

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setInt64(dst *int64, src *int64) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
