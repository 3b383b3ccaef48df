package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"github.com/spf13/cobra"

	"github.com/gpuwatch/gpuwatch-agent/internal/classify"
	"github.com/gpuwatch/gpuwatch-agent/internal/config"
	"github.com/gpuwatch/gpuwatch-agent/internal/errors"
	"github.com/gpuwatch/gpuwatch-agent/internal/health"
	"github.com/gpuwatch/gpuwatch-agent/internal/hostinfo"
	"github.com/gpuwatch/gpuwatch-agent/internal/notify"
	"github.com/gpuwatch/gpuwatch-agent/internal/observability"
	"github.com/gpuwatch/gpuwatch-agent/internal/report"
	"github.com/gpuwatch/gpuwatch-agent/internal/telemetry"
	"github.com/gpuwatch/gpuwatch-agent/internal/watcher"
)

// version is set at build time via -ldflags.
var version = "dev"

// cloudProbeTimeout bounds the startup IMDS probes.
const cloudProbeTimeout = 2 * time.Second

// Exit codes in once mode, preserved for script compatibility:
// 0 = idle GPU(s) detected, 1 = all devices busy, 2 = failure.
func main() {
	cmd, opts := newRootCommand()
	if err := cmd.Execute(); err != nil {
		slog.Error("gpuwatch-agent failed", "error", err)
		os.Exit(2)
	}
	os.Exit(opts.exitCode)
}

type rootOptions struct {
	configFile string
	exitCode   int

	emailTo string
}

func newRootCommand() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "gpuwatch",
		Short:         "Watch GPU telemetry and alert when devices go idle",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg, opts)
			cfg.AgentVersion = version

			if err := cfg.Validate(); err != nil {
				return err
			}
			return opts.run(&cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&opts.configFile, "config", "", "path to YAML config file")
	fl.Duration("interval", 5*time.Second, "time between checks")
	fl.Int("util-threshold", 5, "utilization threshold in percent (<= is idle)")
	fl.Int64("mem-threshold", 500, "memory-used threshold in MiB (<= is idle)")
	fl.Bool("once", false, "check once and exit")
	fl.Bool("json", false, "print status as JSON")
	fl.Duration("cooldown", 10*time.Minute, "minimum time between email notifications (0 = every cycle)")
	fl.String("smi-path", "nvidia-smi", "path to the nvidia-smi binary")
	fl.Int("health-port", 8080, "health/metrics server port (0 = disabled)")

	fl.Bool("email", false, "enable email notification")
	fl.StringVar(&opts.emailTo, "email-to", "", "comma-separated recipients")
	fl.String("smtp-host", "", "SMTP host (or env SMTP_HOST)")
	fl.Int("smtp-port", 0, "SMTP port (or env SMTP_PORT)")
	fl.String("smtp-user", "", "SMTP user (or env SMTP_USER)")
	fl.String("smtp-pass", "", "SMTP pass/app password (or env SMTP_PASS)")
	fl.String("smtp-sender", "", "sender address (or env SMTP_SENDER)")
	fl.Bool("smtp-ssl", false, "use implicit SMTP SSL/TLS")
	fl.Bool("smtp-starttls", false, "require STARTTLS")

	return cmd, opts
}

// applyFlags overlays explicitly set flags onto the config, so the
// precedence is flags > env > file > defaults.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts *rootOptions) {
	fl := cmd.Flags()

	if fl.Changed("interval") {
		cfg.Interval, _ = fl.GetDuration("interval")
	}
	if fl.Changed("util-threshold") {
		cfg.UtilThresholdPct, _ = fl.GetInt("util-threshold")
	}
	if fl.Changed("mem-threshold") {
		cfg.MemThresholdMiB, _ = fl.GetInt64("mem-threshold")
	}
	if fl.Changed("once") {
		cfg.Once, _ = fl.GetBool("once")
	}
	if fl.Changed("json") {
		cfg.JSONOutput, _ = fl.GetBool("json")
	}
	if fl.Changed("cooldown") {
		cfg.AlertCooldown, _ = fl.GetDuration("cooldown")
	}
	if fl.Changed("smi-path") {
		cfg.SMIPath, _ = fl.GetString("smi-path")
	}
	if fl.Changed("health-port") {
		cfg.HealthPort, _ = fl.GetInt("health-port")
	}

	if fl.Changed("email") {
		cfg.MailEnabled, _ = fl.GetBool("email")
	}
	if fl.Changed("email-to") {
		cfg.Recipients = config.SplitList(opts.emailTo)
	}
	if fl.Changed("smtp-host") {
		cfg.SMTPHost, _ = fl.GetString("smtp-host")
	}
	if fl.Changed("smtp-port") {
		cfg.SMTPPort, _ = fl.GetInt("smtp-port")
	}
	if fl.Changed("smtp-user") {
		cfg.SMTPUser, _ = fl.GetString("smtp-user")
	}
	if fl.Changed("smtp-pass") {
		cfg.SMTPPass, _ = fl.GetString("smtp-pass")
	}
	if fl.Changed("smtp-sender") {
		cfg.SMTPSender, _ = fl.GetString("smtp-sender")
	}
	if fl.Changed("smtp-ssl") {
		cfg.SMTPSSL, _ = fl.GetBool("smtp-ssl")
	}
	if fl.Changed("smtp-starttls") {
		cfg.SMTPSTARTTLS, _ = fl.GetBool("smtp-starttls")
	}

	if cfg.SMTPSender == "" {
		cfg.SMTPSender = cfg.SMTPUser
	}
}

func (o *rootOptions) run(cfg *config.Config) error {
	// Context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	slog.Info("gpuwatch-agent starting",
		"version", cfg.AgentVersion,
		"interval", cfg.Interval,
		"once", cfg.Once,
		"json", cfg.JSONOutput,
		"mail_enabled", cfg.MailEnabled,
	)

	// Shared infrastructure.
	metrics := observability.NewMetrics()
	errCollector := errors.NewErrorCollector(errors.RealClock{})
	stateMachine := watcher.NewStateMachine(errors.RealClock{})

	host := hostinfo.Detect(ctx, cfg.CloudMetadata, cloudProbeTimeout)

	// Leaf collaborators: telemetry source, reporter, optional mail notifier.
	source := telemetry.NewSMISource(cfg.SMIPath, cfg.SMITimeout)
	classifier := classify.New(cfg.UtilThresholdPct, cfg.MemThresholdMiB, errors.RealClock{})
	reporter := report.NewConsoleReporter(os.Stdout, cfg.JSONOutput)

	var notifier watcher.Notifier
	var mailer *notify.Mailer
	if cfg.MailEnabled {
		m, err := notify.NewMailer(cfg, metrics, errCollector)
		if err != nil {
			// The original behavior: log and keep watching without email.
			errCollector.Report(errors.WatchError{
				Code:      errors.ErrMailConfigIncomplete,
				Message:   err.Error(),
				Component: "notify",
				Timestamp: time.Now().UnixMilli(),
				Err:       err,
			})
			slog.Warn("email alerts disabled", "error", err)
		} else {
			mailer = m
			mailer.Start(ctx)
			notifier = mailer
		}
	}

	w := watcher.New(cfg, source, classifier, reporter, notifier, stateMachine, errCollector, metrics, host)

	// Health server, skipped in once mode and when the port is 0.
	var healthSrv *health.Server
	if !cfg.Once && cfg.HealthPort > 0 {
		healthSrv = health.NewServer(cfg.HealthPort, metrics, w, w, errCollector, cfg.DebugEndpoints)
		if err := healthSrv.Start(); err != nil {
			return err
		}
		slog.Info("health server listening", "addr", healthSrv.Addr())
	}

	var runErr error
	if cfg.Once {
		alerted, err := w.RunOnce(ctx)
		runErr = err
		if err == nil && !alerted {
			o.exitCode = 1
		}
	} else {
		err := w.Run(ctx)
		if err != nil && ctx.Err() == nil {
			runErr = err
		}
	}

	// Graceful shutdown: flush queued alerts, then stop the health server.
	if mailer != nil {
		mailer.Stop()
	}
	if healthSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := healthSrv.Stop(shutdownCtx); err != nil {
			slog.Error("health server shutdown error", "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	slog.Info("gpuwatch-agent stopped")
	return nil
}
