// Package browser owns the automated browser session: launching a hardened
// Chromium, injecting persisted credentials, and verifying the logged-in
// messages view. The rendered page is exposed to the rest of the system
// through the small Page/Element capability surface below, so the resolver
// and executor never touch rod directly and tests can substitute a fake DOM.
package browser

import (
	"context"
	"time"
)

// Element is a live handle to a rendered DOM node. Handles are owned by the
// active session and go stale whenever the page navigates or reloads; callers
// must re-resolve rather than reuse them across such boundaries.
type Element interface {
	// Tag returns the lower-case tag name, or "" if it cannot be read.
	Tag() string
	// Text returns the rendered text content, trimmed. Empty on failure.
	Text() string
	// Attribute returns the named attribute value, or "" when absent.
	Attribute(name string) string
	// Parent returns the parent element, or false at the document root.
	Parent() (Element, bool)

	Click() error
	// ClickScript activates the element programmatically, for targets that
	// reject synthesized mouse input.
	ClickScript() error
	Input(text string) error
	PressEnter() error
	Focus() error
}

// Page is the capability surface the verifier, resolver, and executor drive.
// Every lookup is bounded: Find honors its timeout, FindAll and FindByText
// inspect only the current render.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	// URL returns the current page URL, best-effort.
	URL() string

	// Find returns the first element matching the CSS selector, waiting up
	// to timeout for it to appear.
	Find(selector string, timeout time.Duration) (Element, bool)
	// FindAll returns all current matches without waiting.
	FindAll(selector string) []Element
	// FindByText returns the deepest element whose text matches. With exact
	// set the trimmed text must equal the query; otherwise substring match.
	FindByText(text string, exact bool) (Element, bool)

	// Scroll scrolls the view vertically to force lazy rendering.
	Scroll(deltaY int)
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
