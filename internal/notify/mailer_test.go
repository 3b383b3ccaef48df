package notify

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpuwatch/gpuwatch-agent/internal/config"
	"github.com/gpuwatch/gpuwatch-agent/internal/errors"
	"github.com/gpuwatch/gpuwatch-agent/internal/observability"
	"github.com/gpuwatch/gpuwatch-agent/pkg/model"
)

type fakeSender struct {
	mu       sync.Mutex
	failures int // number of initial Send calls that fail
	calls    int
	subjects []string
	bodies   []string
}

func (f *fakeSender) Send(_ context.Context, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return stderrors.New("smtp: connection refused")
	}
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
	return nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subjects...)
}

func alertReport() *model.CheckReport {
	devices := []model.DeviceStatus{
		{Index: 0, UtilizationPct: 1, MemoryUsedMiB: 10, MemoryTotalMiB: 40960, Idle: true},
		{Index: 1, UtilizationPct: 88, MemoryUsedMiB: 30000, MemoryTotalMiB: 40960},
	}
	return &model.CheckReport{
		ReportID:  "r-42",
		Host:      model.HostInfo{Hostname: "gpu-node-7", Provider: "gcp", InstanceID: "1234", InstanceType: "a2-highgpu-1g", Zone: "us-central1-a"},
		Timestamp: 1700000000000,
		Devices:   devices,
		Idle:      devices[:1],
	}
}

func TestMailer_DeliversQueuedAlert(t *testing.T) {
	sender := &fakeSender{}
	m := newMailerWithSender(sender, 4, 0, observability.NewMetrics(), errors.NewErrorCollector(errors.RealClock{}))

	m.Start(context.Background())
	require.NoError(t, m.Notify(alertReport()))
	m.Stop()

	subjects := sender.sent()
	require.Len(t, subjects, 1)
	assert.Equal(t, "GPU idle alert: 0", subjects[0])
}

func TestMailer_QueueFull(t *testing.T) {
	sender := &fakeSender{}
	// Queue of 1, worker not started: second Notify must be rejected.
	m := newMailerWithSender(sender, 1, 0, nil, nil)

	require.NoError(t, m.Notify(alertReport()))
	err := m.Notify(alertReport())
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestMailer_StopDrainsQueue(t *testing.T) {
	sender := &fakeSender{}
	m := newMailerWithSender(sender, 4, 0, nil, nil)

	// Enqueue before the worker can pick anything up, then start and stop.
	require.NoError(t, m.Notify(alertReport()))
	require.NoError(t, m.Notify(alertReport()))
	m.Start(context.Background())
	m.Stop()

	assert.Equal(t, 2, sender.callCount(), "queued alerts must be flushed on Stop")
}

func TestMailer_StopIdempotent(t *testing.T) {
	m := newMailerWithSender(&fakeSender{}, 4, 0, nil, nil)
	m.Start(context.Background())
	m.Stop()
	m.Stop()
}

func TestMailer_RetriesTransientFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("retry backoff sleeps for a second")
	}

	sender := &fakeSender{failures: 1}
	m := newMailerWithSender(sender, 4, 2, nil, nil)

	m.deliver(context.Background(), alertReport())

	assert.Equal(t, 2, sender.callCount(), "expected one failure then one successful retry")
	assert.Len(t, sender.sent(), 1)
}

func TestMailer_GivesUpAfterMaxRetries(t *testing.T) {
	sender := &fakeSender{failures: 100}
	collector := errors.NewErrorCollector(errors.RealClock{})
	m := newMailerWithSender(sender, 4, 0, nil, collector)

	m.deliver(context.Background(), alertReport())

	assert.Equal(t, 1, sender.callCount())
	assert.Contains(t, collector.GetActiveErrorCodes(), string(errors.ErrMailDeliveryFailed))
}

func TestMailer_ContextCanceledStopsDelivery(t *testing.T) {
	sender := &fakeSender{}
	m := newMailerWithSender(sender, 4, 3, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.deliver(ctx, alertReport())

	assert.Equal(t, 0, sender.callCount())
}

func TestNewMailer_IncompleteConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		missing string
	}{
		{"no host", func(c *config.Config) { c.SMTPHost = "" }, "SMTP_HOST"},
		{"no port", func(c *config.Config) { c.SMTPPort = 0 }, "SMTP_PORT"},
		{"no sender", func(c *config.Config) { c.SMTPSender = "" }, "SMTP_SENDER"},
		{"no recipients", func(c *config.Config) { c.Recipients = nil }, "SMTP_TO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				SMTPHost:       "smtp.example.com",
				SMTPPort:       587,
				SMTPSender:     "watch@example.com",
				Recipients:     []string{"ops@example.com"},
				MailQueueSize:  4,
				MailMaxRetries: 1,
				MailTimeout:    time.Second,
			}
			tt.mutate(cfg)

			m, err := NewMailer(cfg, nil, nil)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestNewMailer_CompleteConfig(t *testing.T) {
	cfg := &config.Config{
		SMTPHost:       "smtp.example.com",
		SMTPPort:       465,
		SMTPUser:       "watch@example.com",
		SMTPPass:       "secret",
		SMTPSender:     "watch@example.com",
		Recipients:     []string{"ops@example.com", "oncall@example.com"},
		SMTPSSL:        true,
		MailQueueSize:  4,
		MailMaxRetries: 1,
		MailTimeout:    time.Second,
	}

	m, err := NewMailer(cfg, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, m)
}
