package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotLoggedIn signals stale or missing credentials: the messages view
// redirected to the login route. There is no in-run recovery path.
var ErrNotLoggedIn = errors.New("not logged in")

// ErrUnexpectedView signals that navigation landed somewhere that is neither
// the messages view nor the login route.
var ErrUnexpectedView = errors.New("unexpected view after navigation")

// Verifier confirms the authenticated state of a session and clears blocking
// interstitials before the resolver takes over.
type Verifier struct {
	page Page
	log  *zap.Logger

	// PageLoadWait is the settle time after navigating to the messages view.
	PageLoadWait time.Duration
	// ProbeTimeout bounds each individual modal probe and dismiss attempt.
	ProbeTimeout time.Duration
	// DismissSettle is the pause after a dismiss click before re-checking.
	DismissSettle time.Duration
}

// NewVerifier builds a Verifier with default timings.
func NewVerifier(page Page, log *zap.Logger) *Verifier {
	return &Verifier{
		page:          page,
		log:           log,
		PageLoadWait:  5 * time.Second,
		ProbeTimeout:  2 * time.Second,
		DismissSettle: 1500 * time.Millisecond,
	}
}

// VerifyLogin navigates to the messages view and classifies the session.
// A login redirect is fatal (ErrNotLoggedIn). A blocking modal that cannot
// be dismissed is only a warning: later steps may still succeed.
func (v *Verifier) VerifyLogin(ctx context.Context, messagesURL string) error {
	if err := v.page.Navigate(ctx, messagesURL); err != nil {
		return fmt.Errorf("navigate to messages view: %w", err)
	}
	sleep(ctx, v.PageLoadWait)

	current := v.page.URL()
	switch {
	case strings.Contains(current, "login"):
		return fmt.Errorf("%w: redirected to %s", ErrNotLoggedIn, current)
	case strings.Contains(current, "messages"):
		v.log.Info("login verified", zap.String("url", current))
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedView, current)
	}

	v.ClearInterstitials(ctx)
	return nil
}

// ClearInterstitials detects and dismisses a blocking modal. It reports
// whether the page ended up clear; every failure inside is non-fatal.
func (v *Verifier) ClearInterstitials(ctx context.Context) bool {
	if !v.modalPresent() {
		v.log.Debug("no blocking modal detected")
		return true
	}

	v.log.Info("blocking modal detected, attempting dismissal")
	for _, target := range v.dismissTargets() {
		el, desc := target()
		if el == nil {
			continue
		}
		if err := el.Click(); err != nil {
			if err := el.ClickScript(); err != nil {
				v.log.Debug("dismiss target unclickable", zap.String("target", desc), zap.Error(err))
				continue
			}
		}
		sleep(ctx, v.DismissSettle)
		if !v.modalPresent() {
			v.log.Info("modal dismissed", zap.String("target", desc))
			return true
		}
	}

	v.log.Warn("modal detected but could not be dismissed, proceeding anyway")
	return false
}

// modalPresent applies two independent heuristics, OR'd together to reduce
// false negatives: a container class match, and a dialog role whose text
// mentions passkeys.
func (v *Verifier) modalPresent() bool {
	if _, ok := v.page.Find(`div[class*="TUXModal"]`, v.ProbeTimeout); ok {
		return true
	}
	if dialog, ok := v.page.Find(`div[role="dialog"]`, v.ProbeTimeout); ok {
		text := strings.ToLower(dialog.Text())
		if strings.Contains(text, "passkey") {
			return true
		}
	}
	return false
}

// dismissTargets returns candidate interaction targets in priority order:
// text match first, then structural/attribute matches, then a generic
// aria-label fallback.
func (v *Verifier) dismissTargets() []func() (Element, string) {
	structural := []string{
		`button[class*="TUXButton--secondary"]`,
		`button[class*="TUXButton"][class*="secondary"]`,
		`button[class*="secondary"][aria-disabled="false"]`,
	}

	targets := []func() (Element, string){
		func() (Element, string) {
			el, ok := v.page.FindByText("Maybe later", false)
			if !ok {
				return nil, ""
			}
			return buttonAncestor(el), "text match"
		},
	}
	for _, sel := range structural {
		sel := sel
		targets = append(targets, func() (Element, string) {
			el, ok := v.page.Find(sel, v.ProbeTimeout)
			if !ok {
				return nil, ""
			}
			return el, sel
		})
	}
	targets = append(targets, func() (Element, string) {
		el, ok := v.page.Find(`button[aria-label*="Maybe later"]`, v.ProbeTimeout)
		if !ok {
			return nil, ""
		}
		return el, "aria-label fallback"
	})
	return targets
}

// buttonAncestor walks up from a text node to the enclosing button, falling
// back to the element itself when no button encloses it.
func buttonAncestor(el Element) Element {
	node := el
	for hops := 0; hops < 5; hops++ {
		if node.Tag() == "button" {
			return node
		}
		parent, ok := node.Parent()
		if !ok {
			break
		}
		node = parent
	}
	return el
}
