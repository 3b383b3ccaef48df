// Package notify delivers idle alerts by email without ever blocking the
// watcher loop: alerts are handed to a bounded queue drained by a single
// background worker, and a full queue drops the alert.
package notify

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gpuwatch/gpuwatch-agent/internal/config"
	"github.com/gpuwatch/gpuwatch-agent/internal/errors"
	"github.com/gpuwatch/gpuwatch-agent/internal/observability"
	"github.com/gpuwatch/gpuwatch-agent/pkg/model"
)

// ErrQueueFull is returned by Notify when the mail queue is at capacity.
var ErrQueueFull = stderrors.New("notify: mail queue full")

// Mailer queues alert reports and delivers them by SMTP from a background
// worker goroutine, retrying transient failures with exponential backoff.
type Mailer struct {
	sender         Sender
	queue          chan *model.CheckReport
	maxRetries     int
	metrics        *observability.Metrics
	errorCollector *errors.ErrorCollector

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewMailer creates a Mailer from the SMTP settings in cfg.
// It fails when the settings are incomplete so the caller can log and run
// without email rather than discover the gap on the first alert.
func NewMailer(cfg *config.Config, metrics *observability.Metrics, errCollector *errors.ErrorCollector) (*Mailer, error) {
	if missing := missingSettings(cfg); len(missing) > 0 {
		return nil, fmt.Errorf("notify: incomplete SMTP config, missing %s", strings.Join(missing, ", "))
	}

	sender, err := newSMTPSender(cfg)
	if err != nil {
		return nil, err
	}

	return newMailerWithSender(sender, cfg.MailQueueSize, cfg.MailMaxRetries, metrics, errCollector), nil
}

// newMailerWithSender wires a Mailer around an arbitrary Sender. Split out
// so tests can inject a fake.
func newMailerWithSender(sender Sender, queueSize, maxRetries int, metrics *observability.Metrics, errCollector *errors.ErrorCollector) *Mailer {
	return &Mailer{
		sender:         sender,
		queue:          make(chan *model.CheckReport, queueSize),
		maxRetries:     maxRetries,
		metrics:        metrics,
		errorCollector: errCollector,
		stopCh:         make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// missingSettings returns the names of required SMTP settings that are unset.
func missingSettings(cfg *config.Config) []string {
	var missing []string
	if cfg.SMTPHost == "" {
		missing = append(missing, "SMTP_HOST")
	}
	if cfg.SMTPPort < 1 || cfg.SMTPPort > 65535 {
		missing = append(missing, "SMTP_PORT")
	}
	if cfg.SMTPSender == "" {
		missing = append(missing, "SMTP_SENDER")
	}
	if len(cfg.Recipients) == 0 {
		missing = append(missing, "SMTP_TO")
	}
	return missing
}

// Start launches the background delivery goroutine.
func (m *Mailer) Start(ctx context.Context) {
	go m.run(ctx)
}

// Stop signals the worker to stop and waits for it to exit. Alerts already
// queued are still delivered before Stop returns, unless the context passed
// to Start has been canceled. Safe to call multiple times.
func (m *Mailer) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.done
}

// Notify enqueues an alert report for delivery. It never blocks: when the
// queue is full the report is dropped and ErrQueueFull returned.
func (m *Mailer) Notify(r *model.CheckReport) error {
	select {
	case m.queue <- r:
		if m.metrics != nil {
			m.metrics.MailQueueDepth.Inc()
		}
		return nil
	default:
		return ErrQueueFull
	}
}

func (m *Mailer) run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-m.stopCh:
			m.drain(ctx)
			return
		case <-ctx.Done():
			return
		case r := <-m.queue:
			if m.metrics != nil {
				m.metrics.MailQueueDepth.Dec()
			}
			m.deliver(ctx, r)
		}
	}
}

// drain delivers anything still queued at shutdown. Matters in once mode,
// where the process exits right after the first check.
func (m *Mailer) drain(ctx context.Context) {
	for {
		select {
		case r := <-m.queue:
			if m.metrics != nil {
				m.metrics.MailQueueDepth.Dec()
			}
			m.deliver(ctx, r)
		default:
			return
		}
	}
}

// deliver sends one alert, retrying transient failures with exponential
// backoff (1s * 2^attempt).
func (m *Mailer) deliver(ctx context.Context, r *model.CheckReport) {
	subject := buildSubject(r)
	body := buildBody(r)

	var lastErr error
	maxAttempts := m.maxRetries + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if m.metrics != nil {
				m.metrics.MailRetries.Inc()
			}
			sleepWithBackoff(attempt - 1)
		}

		if err := ctx.Err(); err != nil {
			lastErr = fmt.Errorf("notify: context canceled before attempt %d: %w", attempt+1, err)
			break
		}

		if err := m.sender.Send(ctx, subject, body); err != nil {
			lastErr = err
			continue
		}

		lastErr = nil
		break
	}

	if lastErr != nil {
		if m.metrics != nil {
			m.metrics.MailSendsTotal.WithLabelValues("error").Inc()
		}
		if m.errorCollector != nil {
			m.errorCollector.Report(errors.WatchError{
				Code:      errors.ErrMailDeliveryFailed,
				Message:   fmt.Sprintf("email alert delivery failed: %v", lastErr),
				Component: "notify",
				Timestamp: time.Now().UnixMilli(),
				Err:       lastErr,
			})
		}
		slog.Error("email alert failed", "report_id", r.ReportID, "error", lastErr)
		return
	}

	if m.metrics != nil {
		m.metrics.MailSendsTotal.WithLabelValues("success").Inc()
	}
	slog.Info("email alert sent", "report_id", r.ReportID, "idle", r.IdleIndexes())
}

// sleepWithBackoff sleeps for exponential backoff: 1s * 2^attempt.
func sleepWithBackoff(attempt int) {
	d := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	time.Sleep(d)
}
