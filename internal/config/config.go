package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all watcher configuration values.
type Config struct {
	Interval         time.Duration // GPUWATCH_INTERVAL, default: 5s
	UtilThresholdPct int           // GPUWATCH_UTIL_THRESHOLD, default: 5 (<= is idle)
	MemThresholdMiB  int64         // GPUWATCH_MEM_THRESHOLD_MIB, default: 500 (<= is idle)
	Once             bool          // GPUWATCH_ONCE, default: false — check once and exit
	JSONOutput       bool          // GPUWATCH_JSON, default: false — emit JSON reports
	AlertCooldown    time.Duration // GPUWATCH_ALERT_COOLDOWN, default: 10m — 0 notifies every cycle

	// Telemetry source
	SMIPath    string        // GPUWATCH_SMI_PATH, default: "nvidia-smi"
	SMITimeout time.Duration // GPUWATCH_SMI_TIMEOUT, default: 10s

	// Health/debug server
	HealthPort     int  // GPUWATCH_HEALTH_PORT, default: 8080 — 0 disables the server
	DebugEndpoints bool // GPUWATCH_DEBUG_ENDPOINTS, default: false — enables pprof/debug

	// Host identity
	CloudMetadata bool // GPUWATCH_CLOUD_METADATA, default: true — probe IMDS for instance identity

	// Mail notification
	MailEnabled    bool          // GPUWATCH_MAIL_ENABLED, default: false
	MailQueueSize  int           // GPUWATCH_MAIL_QUEUE_SIZE, default: 8
	MailMaxRetries int           // GPUWATCH_MAIL_MAX_RETRIES, default: 3
	MailTimeout    time.Duration // GPUWATCH_MAIL_TIMEOUT, default: 30s per delivery attempt
	SMTPHost       string        // SMTP_HOST
	SMTPPort       int           // SMTP_PORT
	SMTPUser       string        // SMTP_USER
	SMTPPass       string        // SMTP_PASS
	SMTPSender     string        // SMTP_SENDER, falls back to SMTP_USER
	Recipients     []string      // SMTP_TO, comma-separated
	SMTPSSL        bool          // GPUWATCH_SMTP_SSL — implicit TLS
	SMTPSTARTTLS   bool          // GPUWATCH_SMTP_STARTTLS — require STARTTLS

	AgentVersion string
}

// Load builds a Config from defaults, an optional YAML file, and environment
// variables, in increasing precedence. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		Interval:         5 * time.Second,
		UtilThresholdPct: 5,
		MemThresholdMiB:  500,
		AlertCooldown:    10 * time.Minute,
		SMIPath:          "nvidia-smi",
		SMITimeout:       10 * time.Second,
		HealthPort:       8080,
		CloudMetadata:    true,
		MailQueueSize:    8,
		MailMaxRetries:   3,
		MailTimeout:      30 * time.Second,
	}
}

func applyEnv(cfg *Config) {
	cfg.Interval = parseDuration("GPUWATCH_INTERVAL", cfg.Interval)
	cfg.UtilThresholdPct = parseInt("GPUWATCH_UTIL_THRESHOLD", cfg.UtilThresholdPct)
	cfg.MemThresholdMiB = parseInt64("GPUWATCH_MEM_THRESHOLD_MIB", cfg.MemThresholdMiB)
	cfg.Once = parseBool("GPUWATCH_ONCE", cfg.Once)
	cfg.JSONOutput = parseBool("GPUWATCH_JSON", cfg.JSONOutput)
	cfg.AlertCooldown = parseDuration("GPUWATCH_ALERT_COOLDOWN", cfg.AlertCooldown)

	cfg.SMIPath = envOrDefault("GPUWATCH_SMI_PATH", cfg.SMIPath)
	cfg.SMITimeout = parseDuration("GPUWATCH_SMI_TIMEOUT", cfg.SMITimeout)

	cfg.HealthPort = parseInt("GPUWATCH_HEALTH_PORT", cfg.HealthPort)
	cfg.DebugEndpoints = parseBool("GPUWATCH_DEBUG_ENDPOINTS", cfg.DebugEndpoints)
	cfg.CloudMetadata = parseBool("GPUWATCH_CLOUD_METADATA", cfg.CloudMetadata)

	cfg.MailEnabled = parseBool("GPUWATCH_MAIL_ENABLED", cfg.MailEnabled)
	cfg.MailQueueSize = parseInt("GPUWATCH_MAIL_QUEUE_SIZE", cfg.MailQueueSize)
	cfg.MailMaxRetries = parseInt("GPUWATCH_MAIL_MAX_RETRIES", cfg.MailMaxRetries)
	cfg.MailTimeout = parseDuration("GPUWATCH_MAIL_TIMEOUT", cfg.MailTimeout)

	// SMTP settings keep their conventional unprefixed names so existing
	// deployments can reuse credentials already present in the environment.
	cfg.SMTPHost = envOrDefault("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = parseInt("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUser = envOrDefault("SMTP_USER", cfg.SMTPUser)
	cfg.SMTPPass = envOrDefault("SMTP_PASS", cfg.SMTPPass)
	cfg.SMTPSender = envOrDefault("SMTP_SENDER", cfg.SMTPSender)
	if v := parseStringSlice("SMTP_TO"); v != nil {
		cfg.Recipients = v
	}
	cfg.SMTPSSL = parseBool("GPUWATCH_SMTP_SSL", cfg.SMTPSSL)
	cfg.SMTPSTARTTLS = parseBool("GPUWATCH_SMTP_STARTTLS", cfg.SMTPSTARTTLS)

	if cfg.SMTPSender == "" {
		cfg.SMTPSender = cfg.SMTPUser
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDuration tries time.ParseDuration first, then falls back to treating
// the value as integer seconds.
func parseDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(v)
	if err == nil {
		return d
	}

	// Fallback: treat as integer seconds
	secs, err := strconv.Atoi(v)
	if err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}

func parseBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func parseInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseStringSlice(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return SplitList(v)
}

// SplitList splits a comma-separated list, trimming whitespace and dropping
// empty elements.
func SplitList(v string) []string {
	var result []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}
