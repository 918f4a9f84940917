// Package runner sequences a full streak run: bootstrap the browser session,
// inject credentials, verify login, resolve contacts, and deliver to each
// resolved contact, reporting lifecycle events through the sink. One runner
// run exclusively owns one browser session; there is no parallel delivery
// because the rendered page and input focus are a single shared resource.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"streakd/internal/browser"
	"streakd/internal/config"
	"streakd/internal/contacts"
	"streakd/internal/creds"
	"streakd/internal/delivery"
	"streakd/internal/notify"
	"streakd/internal/resolver"
)

// ErrNoContacts means the run had nothing to do: no identities were supplied
// and the contact store is empty.
var ErrNoContacts = errors.New("no target contacts configured")

// Options parameterizes a single run. The message override is threaded
// through explicitly; runs never share mutable state.
type Options struct {
	// Identities overrides the contact store when non-empty.
	Identities []string
	// Message overrides the configured default when non-empty.
	Message string
	// TestMode resolves contacts but skips all delivery interaction.
	TestMode bool
	// Headless controls the browser session for this run.
	Headless bool
}

// Report is the outcome of one run. It is owned by the runner's caller and
// not persisted anywhere.
type Report struct {
	RunID         string            `json:"run_id"`
	StartedAt     time.Time         `json:"started_at"`
	TargetCount   int               `json:"target_count"`
	ResolvedCount int               `json:"resolved_count"`
	Results       []delivery.Result `json:"results"`
}

// SuccessCount returns how many contacts were delivered to.
func (r *Report) SuccessCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// Session is the slice of the browser session the runner drives. Satisfied
// by *browser.Session; faked in tests.
type Session interface {
	Page() browser.Page
	InjectCookies(ctx context.Context, baseURL string, cookies []browser.Cookie) error
	Close()
}

// Runner executes streak runs.
type Runner struct {
	cfg   config.Config
	log   *zap.Logger
	sink  *notify.Sink
	store *contacts.Store

	betweenContacts time.Duration

	// Seams for tests; production defaults are installed by New.
	loadCreds   func() ([]browser.Cookie, error)
	openSession func(ctx context.Context, bcfg browser.Config, log *zap.Logger) (Session, error)
	newVerifier func(page browser.Page) *browser.Verifier
	newExecutor func(res *resolver.Resolver) *delivery.Executor
}

// New builds a Runner wired to the real browser, credential file, and
// config-driven timings.
func New(cfg config.Config, log *zap.Logger, sink *notify.Sink, store *contacts.Store) *Runner {
	r := &Runner{
		cfg:             cfg,
		log:             log,
		sink:            sink,
		store:           store,
		betweenContacts: time.Second,
	}
	r.loadCreds = func() ([]browser.Cookie, error) {
		return creds.Load(cfg.CookiesFile)
	}
	r.openSession = func(ctx context.Context, bcfg browser.Config, log *zap.Logger) (Session, error) {
		return browser.Open(ctx, bcfg, log)
	}
	r.newVerifier = func(page browser.Page) *browser.Verifier {
		v := browser.NewVerifier(page, log)
		v.PageLoadWait = cfg.PageLoadWait()
		return v
	}
	r.newExecutor = func(res *resolver.Resolver) *delivery.Executor {
		e := delivery.New(log, sink, res)
		e.ElementWait = cfg.ElementWait()
		e.SendDelay = cfg.SendDelay()
		e.RetryDelay = cfg.RetryDelay()
		e.ReloadWait = cfg.PageLoadWait()
		return e
	}
	return r
}

// Run executes one full run. Fatal failures (no contacts, missing
// credentials, bootstrap or login failure) abort the run with an error and
// exactly one fatal sink event; per-contact delivery failures do not.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), StartedAt: time.Now()}
	r.log.Info("streak run starting",
		zap.String("run_id", report.RunID),
		zap.Bool("test_mode", opts.TestMode))
	r.sink.Emit(notify.SeverityInfo, "Streak run started at %s",
		report.StartedAt.Format("2006-01-02 15:04:05"))

	identities := opts.Identities
	if len(identities) == 0 && r.store != nil {
		identities = r.store.List()
	}
	if len(identities) == 0 {
		r.sink.Emit(notify.SeverityFatal, "No target contacts configured")
		return report, ErrNoContacts
	}
	report.TargetCount = len(identities)

	message := opts.Message
	if message == "" {
		message = r.cfg.Message
	}

	cookies, err := r.loadCreds()
	if err != nil {
		r.sink.Emit(notify.SeverityFatal, "Credential bundle unavailable: %v", err)
		return report, fmt.Errorf("load credentials: %w", err)
	}

	bcfg := browser.DefaultConfig()
	bcfg.Headless = opts.Headless
	sess, err := r.openSession(ctx, bcfg, r.log)
	if err != nil {
		r.sink.Emit(notify.SeverityFatal, "Browser bootstrap failed: %v", err)
		return report, fmt.Errorf("bootstrap session: %w", err)
	}
	defer sess.Close()

	if err := sess.InjectCookies(ctx, r.cfg.BaseURL, cookies); err != nil {
		r.sink.Emit(notify.SeverityFatal, "Credential injection failed: %v", err)
		return report, fmt.Errorf("inject credentials: %w", err)
	}

	page := sess.Page()
	if err := r.newVerifier(page).VerifyLogin(ctx, r.cfg.MessagesURL); err != nil {
		r.sink.Emit(notify.SeverityFatal, "Login failed: %v", err)
		return report, fmt.Errorf("verify login: %w", err)
	}

	res := resolver.New(r.log)
	resolved := res.Resolve(page, identities)
	report.ResolvedCount = len(resolved)
	if len(resolved) == 0 {
		r.sink.Emit(notify.SeverityWarn,
			"None of the %d target contacts were found in the message list",
			report.TargetCount)
		return report, nil
	}

	exec := r.newExecutor(res)
	for i, contact := range resolved {
		result := exec.Deliver(ctx, page, contact, message, opts.TestMode)
		report.Results = append(report.Results, result)
		if i < len(resolved)-1 {
			wait(ctx, r.betweenContacts)
		}
	}

	names := make([]string, len(resolved))
	for i, c := range resolved {
		names[i] = c.Identity
	}
	r.sink.Emit(notify.SeverityInfo,
		"Streak run finished: %d/%d delivered\nContacts: %s",
		report.SuccessCount(), len(resolved), strings.Join(names, ", "))
	r.log.Info("streak run complete",
		zap.String("run_id", report.RunID),
		zap.Int("delivered", report.SuccessCount()),
		zap.Int("resolved", report.ResolvedCount),
		zap.Int("targets", report.TargetCount))
	return report, nil
}

func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
