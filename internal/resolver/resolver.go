// Package resolver maps logical contact identities onto live, clickable
// elements in the rendered conversation list. The list markup is unversioned
// and changes frequently, so resolution runs a prioritized strategy chain:
// structural nickname selectors first, then a document-wide text query.
package resolver

import (
	"strings"

	"go.uber.org/zap"

	"streakd/internal/browser"
)

// Strategy names how a contact was located, for diagnostics and reports.
type Strategy string

const (
	StrategySelector      Strategy = "nickname-selector"
	StrategyTextExact     Strategy = "text-exact"
	StrategyTextSubstring Strategy = "text-substring"
)

// nicknameSelectors narrow from the most specific structural match to a
// generic class-text match. Order matters.
var nicknameSelectors = []string{
	`p[class*="PInfoNickname"]`,
	`p[class*="Nickname"]`,
	`span[class*="Nickname"]`,
	`div[class*="Nickname"]`,
}

// maxAncestorHops bounds the walk from a nickname label up to its clickable
// conversation container.
const maxAncestorHops = 10

// diagnosticSampleSize caps the visible-label sample logged on a deficit.
const diagnosticSampleSize = 10

// Contact is a resolved target: a live element handle plus how it was found.
// Handles are only valid until the page navigates or reloads.
type Contact struct {
	Identity string
	Element  browser.Element
	Strategy Strategy
	Index    int
}

// Resolver finds contacts in the conversation list.
type Resolver struct {
	log *zap.Logger
}

// New builds a Resolver.
func New(log *zap.Logger) *Resolver {
	return &Resolver{log: log}
}

// Resolve maps each identity to a clickable element. It never fails:
// unresolved identities are simply absent from the result, reported as a
// deficit. Duplicate identities are resolved once, in input order.
func (r *Resolver) Resolve(page browser.Page, identities []string) []Contact {
	var found []Contact
	seen := make(map[string]bool, len(identities))

	for _, identity := range identities {
		key := strings.ToLower(strings.TrimSpace(identity))
		if key == "" || seen[key] {
			continue
		}
		el, strategy, ok := r.Locate(page, identity)
		if !ok {
			continue
		}
		seen[key] = true
		found = append(found, Contact{
			Identity: identity,
			Element:  el,
			Strategy: strategy,
			Index:    len(found),
		})
		r.log.Info("resolved contact",
			zap.String("identity", identity),
			zap.String("strategy", string(strategy)))
	}

	r.reportDeficit(page, identities, found)
	return found
}

// Locate runs the strategy chain for a single identity. The executor reuses
// it to re-resolve contacts whose handles have gone stale.
func (r *Resolver) Locate(page browser.Page, identity string) (browser.Element, Strategy, bool) {
	want := strings.ToLower(strings.TrimSpace(identity))

	for _, selector := range nicknameSelectors {
		for _, label := range page.FindAll(selector) {
			if strings.ToLower(label.Text()) != want {
				continue
			}
			return clickTarget(label), StrategySelector, true
		}
	}

	if el, ok := page.FindByText(identity, true); ok {
		return el, StrategyTextExact, true
	}
	if el, ok := page.FindByText(identity, false); ok {
		return el, StrategyTextSubstring, true
	}
	return nil, "", false
}

// clickTarget walks ancestors from a nickname label looking for the
// conversation container flagged by its class. Falls back to the label
// itself when no container is found within the hop bound.
func clickTarget(label browser.Element) browser.Element {
	node := label
	for hops := 0; hops < maxAncestorHops; hops++ {
		parent, ok := node.Parent()
		if !ok {
			break
		}
		class := parent.Attribute("class")
		if strings.Contains(class, "Item") ||
			strings.Contains(class, "item") ||
			strings.Contains(class, "Container") {
			return parent
		}
		node = parent
	}
	return label
}

// reportDeficit logs identities that did not resolve, along with a sample of
// the labels actually visible, to aid diagnosis when the markup shifts.
// Best-effort: any failure in here is swallowed.
func (r *Resolver) reportDeficit(page browser.Page, identities []string, found []Contact) {
	defer func() {
		_ = recover()
	}()

	resolved := make(map[string]bool, len(found))
	for _, c := range found {
		resolved[strings.ToLower(c.Identity)] = true
	}

	var missing []string
	for _, id := range identities {
		if !resolved[strings.ToLower(strings.TrimSpace(id))] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return
	}

	var visible []string
	for _, selector := range nicknameSelectors {
		for _, el := range page.FindAll(selector) {
			if text := el.Text(); text != "" {
				visible = append(visible, text)
			}
			if len(visible) >= diagnosticSampleSize {
				break
			}
		}
		if len(visible) >= diagnosticSampleSize {
			break
		}
	}

	r.log.Warn("some contacts were not found",
		zap.Strings("missing", missing),
		zap.Strings("visible_labels", visible))
}
