package config

import (
	"fmt"
	"time"
)

// Validate checks that the Config contains valid values.
// Returns an error describing the first invalid field found.
//
// SMTP completeness is deliberately not validated here: the original
// behavior is to skip email delivery with a log line when settings are
// missing, which NewMailer handles at construction time.
func (c Config) Validate() error {
	if c.Interval < time.Second {
		return fmt.Errorf("config: Interval must be >= 1s, got %v", c.Interval)
	}

	if c.UtilThresholdPct < 0 || c.UtilThresholdPct > 100 {
		return fmt.Errorf("config: UtilThresholdPct must be 0-100, got %d", c.UtilThresholdPct)
	}

	if c.MemThresholdMiB < 0 {
		return fmt.Errorf("config: MemThresholdMiB must be >= 0, got %d", c.MemThresholdMiB)
	}

	if c.AlertCooldown < 0 {
		return fmt.Errorf("config: AlertCooldown must be >= 0, got %v", c.AlertCooldown)
	}

	if c.SMIPath == "" {
		return fmt.Errorf("config: SMIPath is required")
	}

	if c.SMITimeout < time.Second {
		return fmt.Errorf("config: SMITimeout must be >= 1s, got %v", c.SMITimeout)
	}

	if c.HealthPort < 0 || c.HealthPort > 65535 {
		return fmt.Errorf("config: HealthPort must be 0-65535, got %d", c.HealthPort)
	}

	if c.MailQueueSize < 1 {
		return fmt.Errorf("config: MailQueueSize must be >= 1, got %d", c.MailQueueSize)
	}

	if c.MailMaxRetries < 0 {
		return fmt.Errorf("config: MailMaxRetries must be >= 0, got %d", c.MailMaxRetries)
	}

	if c.SMTPSSL && c.SMTPSTARTTLS {
		return fmt.Errorf("config: SMTPSSL and SMTPSTARTTLS are mutually exclusive")
	}

	return nil
}
