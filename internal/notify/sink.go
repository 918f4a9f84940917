// Package notify implements the run event sink: every event is logged
// locally, and events at or above a configured severity are mirrored to an
// external transport (Telegram in production), rate-limited so a noisy run
// cannot flood the channel.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Severity classifies sink events.
type Severity int8

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
	SeverityFatal
)

// String returns the upper-case severity name.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityWarn:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// marker returns the visual prefix used in mirrored messages.
func (s Severity) marker() string {
	switch s {
	case SeverityDebug:
		return "\U0001F535"
	case SeverityInfo:
		return "ℹ️"
	case SeverityWarn:
		return "⚠️"
	case SeverityError:
		return "❌"
	case SeverityFatal:
		return "\U0001F6A8"
	default:
		return "\U0001F4DD"
	}
}

// ParseSeverity maps a config string to a Severity, defaulting to info.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return SeverityDebug
	case "warn", "warning":
		return SeverityWarn
	case "error":
		return SeverityError
	case "fatal", "critical":
		return SeverityFatal
	default:
		return SeverityInfo
	}
}

// Event is a rendered sink event. Events are transient; the sink may drop
// them under its rate policy.
type Event struct {
	Severity Severity
	Time     time.Time
	Text     string
}

// Transport delivers a rendered event to an external channel.
type Transport interface {
	Send(ctx context.Context, text string) error
}

// Sink fans events out to the local logger and, best-effort, to the external
// transport. Emit never blocks meaningfully and never returns an error.
type Sink struct {
	log         *zap.Logger
	transport   Transport
	minSeverity Severity
	minInterval time.Duration
	sendTimeout time.Duration

	mu       sync.Mutex
	lastSend time.Time

	now func() time.Time
}

// Option customizes a Sink.
type Option func(*Sink)

// WithMinSeverity sets the lowest severity mirrored to the transport.
func WithMinSeverity(s Severity) Option {
	return func(sk *Sink) { sk.minSeverity = s }
}

// WithMinInterval sets the minimum interval between transport sends. Events
// arriving earlier are dropped, not queued.
func WithMinInterval(d time.Duration) Option {
	return func(sk *Sink) { sk.minInterval = d }
}

// WithClock overrides the sink clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(sk *Sink) { sk.now = now }
}

// New builds a Sink. A nil transport disables mirroring; events are still
// logged locally.
func New(log *zap.Logger, transport Transport, opts ...Option) *Sink {
	s := &Sink{
		log:         log,
		transport:   transport,
		minSeverity: SeverityInfo,
		minInterval: time.Second,
		sendTimeout: 10 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit records a formatted event. Local logging always happens; mirroring is
// subject to the severity floor and rate limit, and transport failures are
// swallowed after a local warning.
func (s *Sink) Emit(sev Severity, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	ev := Event{Severity: sev, Time: s.now(), Text: text}

	s.logLocal(ev)

	if s.transport == nil || sev < s.minSeverity {
		return
	}
	if !s.allow(ev.Time) {
		s.log.Debug("sink event dropped by rate limit", zap.String("severity", sev.String()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()
	if err := s.transport.Send(ctx, render(ev)); err != nil {
		s.log.Warn("notification delivery failed", zap.Error(err))
	}
}

func (s *Sink) logLocal(ev Event) {
	switch ev.Severity {
	case SeverityDebug:
		s.log.Debug(ev.Text)
	case SeverityInfo:
		s.log.Info(ev.Text)
	case SeverityWarn:
		s.log.Warn(ev.Text)
	default:
		s.log.Error(ev.Text)
	}
}

// allow applies the minimum inter-send interval. Recency is preferred over
// completeness: a too-early event is dropped for good.
func (s *Sink) allow(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastSend.IsZero() && now.Sub(s.lastSend) < s.minInterval {
		return false
	}
	s.lastSend = now
	return true
}

// render produces the mirrored message text with marker and timestamp.
func render(ev Event) string {
	return fmt.Sprintf("%s <b>%s</b> [%s]\n%s",
		ev.Severity.marker(), ev.Severity, ev.Time.Format("15:04:05"), ev.Text)
}
