// Package delivery drives the open → compose → submit sequence for a
// resolved contact, with bounded retries and escalating re-location
// strategies. A failed contact never aborts the run; exhaustion is recorded
// in the per-contact result and reported through the sink.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"streakd/internal/browser"
	"streakd/internal/notify"
	"streakd/internal/resolver"
)

// MaxAttempts caps delivery attempts per contact.
const MaxAttempts = 3

// ErrNoInput means the conversation opened but no message input could be
// located with any of the compose selectors.
var ErrNoInput = errors.New("message input not found")

// Attempt records one delivery attempt for a contact.
type Attempt struct {
	Number   int    `json:"number"`
	Strategy string `json:"strategy"`
	Error    string `json:"error,omitempty"`
}

// Result is the immutable outcome of delivering to one contact.
type Result struct {
	Identity string    `json:"identity"`
	Success  bool      `json:"success"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

// composeSelectors locate the message input, most specific first.
var composeSelectors = []string{
	`div[data-e2e="message-input"]`,
	`div[contenteditable="true"]`,
	`textarea[placeholder*="message"]`,
	`input[placeholder*="message"]`,
	`div[class*="Input"] div[contenteditable="true"]`,
}

// sendSelectors locate an explicit send control. When none resolves the
// executor falls back to the input's enter-to-send semantics.
var sendSelectors = []string{
	`button[data-e2e="send-button"]`,
	`button[class*="send"]`,
	`button[class*="Send"]`,
}

// Executor sends a message to one resolved contact at a time.
type Executor struct {
	log  *zap.Logger
	sink *notify.Sink
	res  *resolver.Resolver

	// ElementWait is the settle time after opening a conversation.
	ElementWait time.Duration
	// FocusSettle is the short pause after focusing the input.
	FocusSettle time.Duration
	// SendDelay is the settle time after submitting.
	SendDelay time.Duration
	// RetryDelay is the pause between failed attempts.
	RetryDelay time.Duration
	// ProbeTimeout bounds each compose/send selector lookup.
	ProbeTimeout time.Duration
	// ScrollSettle is the pause between the scroll nudges on attempt 2.
	ScrollSettle time.Duration
	// ReloadWait is the settle time after a view reload on attempt 3.
	ReloadWait time.Duration
}

// New builds an Executor with default timings.
func New(log *zap.Logger, sink *notify.Sink, res *resolver.Resolver) *Executor {
	return &Executor{
		log:          log,
		sink:         sink,
		res:          res,
		ElementWait:  3 * time.Second,
		FocusSettle:  500 * time.Millisecond,
		SendDelay:    2 * time.Second,
		RetryDelay:   2 * time.Second,
		ProbeTimeout: 2 * time.Second,
		ScrollSettle: time.Second,
		ReloadWait:   5 * time.Second,
	}
}

// Deliver runs the per-contact delivery state machine. In test mode the
// interaction steps are skipped entirely and the contact is recorded as
// successful with no attempts, which makes resolution-only dry runs cheap.
func (e *Executor) Deliver(ctx context.Context, page browser.Page, contact resolver.Contact, message string, testMode bool) Result {
	result := Result{Identity: contact.Identity}

	if testMode {
		e.log.Info("test mode, skipping delivery", zap.String("identity", contact.Identity))
		result.Success = true
		return result
	}

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		e.log.Info("sending message",
			zap.String("identity", contact.Identity),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", MaxAttempts))

		strategy, err := e.attempt(ctx, page, contact.Identity, message, attempt)
		rec := Attempt{Number: attempt, Strategy: strategy}
		if err != nil {
			rec.Error = err.Error()
		}
		result.Attempts = append(result.Attempts, rec)

		if err == nil {
			e.log.Info("message sent", zap.String("identity", contact.Identity))
			result.Success = true
			return result
		}

		e.log.Warn("delivery attempt failed",
			zap.String("identity", contact.Identity),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < MaxAttempts {
			sleep(ctx, e.RetryDelay)
		}
	}

	e.sink.Emit(notify.SeverityError,
		"Failed to send to %s after %d attempts", contact.Identity, MaxAttempts)
	return result
}

// attempt performs one full locate → open → compose → submit pass. The
// returned strategy names the locate escalation used for diagnostics.
func (e *Executor) attempt(ctx context.Context, page browser.Page, identity, message string, attempt int) (string, error) {
	target, strategy, err := e.locate(ctx, page, identity, attempt)
	if err != nil {
		return strategy, err
	}

	if err := e.open(target); err != nil {
		return strategy, err
	}
	sleep(ctx, e.ElementWait)

	input, ok := e.findComposeInput(page)
	if !ok {
		return strategy, fmt.Errorf("%w for %s", ErrNoInput, identity)
	}

	if err := e.submit(ctx, page, input, message); err != nil {
		return strategy, err
	}
	// Submission completed without error; success is assumed. There is no
	// transcript check, so a silent remote rejection is not detected.
	return strategy, nil
}

// locate re-resolves the contact fresh for this attempt: the handle obtained
// at resolution time may be stale by delivery time. Attempt 2 first scrolls
// the list to force lazy rendering, attempt 3 reloads the whole view.
func (e *Executor) locate(ctx context.Context, page browser.Page, identity string, attempt int) (browser.Element, string, error) {
	switch attempt {
	case 2:
		page.Scroll(-500)
		sleep(ctx, e.ScrollSettle)
		page.Scroll(500)
	case 3:
		if err := page.Reload(ctx); err != nil {
			e.log.Warn("view reload failed", zap.Error(err))
		}
		sleep(ctx, e.ReloadWait)
	}

	el, locStrategy, ok := e.res.Locate(page, identity)
	if !ok {
		return nil, locateStrategyName(attempt), fmt.Errorf("contact %s not found (locate strategy %d)", identity, attempt)
	}
	return el, locateStrategyName(attempt) + "/" + string(locStrategy), nil
}

func locateStrategyName(attempt int) string {
	switch attempt {
	case 2:
		return "scroll"
	case 3:
		return "reload"
	default:
		return "direct"
	}
}

// open clicks the conversation, falling back to programmatic activation.
func (e *Executor) open(target browser.Element) error {
	if err := target.Click(); err != nil {
		e.log.Debug("direct click failed, using programmatic activation", zap.Error(err))
		if err := target.ClickScript(); err != nil {
			return fmt.Errorf("open conversation: %w", err)
		}
	}
	return nil
}

func (e *Executor) findComposeInput(page browser.Page) (browser.Element, bool) {
	for _, selector := range composeSelectors {
		if el, ok := page.Find(selector, e.ProbeTimeout); ok {
			return el, true
		}
	}
	return nil, false
}

// submit focuses the input, injects the message, and sends via an explicit
// send control when one exists, else via the input's enter semantics.
func (e *Executor) submit(ctx context.Context, page browser.Page, input browser.Element, message string) error {
	if err := input.Focus(); err != nil {
		e.log.Debug("input focus failed", zap.Error(err))
	}
	sleep(ctx, e.FocusSettle)

	if err := input.Input(message); err != nil {
		return fmt.Errorf("type message: %w", err)
	}
	sleep(ctx, e.FocusSettle)

	if send, ok := e.findSendControl(page); ok {
		if err := send.Click(); err != nil {
			return fmt.Errorf("click send: %w", err)
		}
	} else if err := input.PressEnter(); err != nil {
		return fmt.Errorf("enter to send: %w", err)
	}

	sleep(ctx, e.SendDelay)
	return nil
}

func (e *Executor) findSendControl(page browser.Page) (browser.Element, bool) {
	for _, selector := range sendSelectors {
		if el, ok := page.Find(selector, e.ProbeTimeout); ok {
			return el, true
		}
	}
	return nil, false
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
