// Package browsertest provides an in-memory Page/Element implementation for
// exercising the verifier, resolver, and executor without a real browser.
// The selector engine supports the subset of CSS this codebase uses: a tag
// name, [attr="v"] and [attr*="v"] filters, and descendant combinators.
package browsertest

import (
	"context"
	"strings"
	"time"

	"streakd/internal/browser"
)

// Node is a fake DOM node. It records every interaction so tests can assert
// on clicks, inputs, and key presses.
type Node struct {
	TagName     string
	Attrs       map[string]string
	TextContent string
	Children    []*Node

	parent *Node

	Clicks       int
	ScriptClicks int
	Inputs       []string
	EnterPresses int
	Focuses      int

	// ClickErr forces Click to fail, to exercise the programmatic-click
	// fallback paths.
	ClickErr error
	// OnClick runs after any successful click, so tests can mutate the
	// tree the way a real page would (close a modal, open a thread).
	OnClick func()
}

// NewNode builds a node and links the children back to it.
func NewNode(tag string, attrs map[string]string, text string, children ...*Node) *Node {
	if attrs == nil {
		attrs = map[string]string{}
	}
	n := &Node{TagName: tag, Attrs: attrs, TextContent: text, Children: children}
	for _, c := range children {
		c.parent = n
	}
	return n
}

// Append adds a child node after construction (e.g. lazily rendered rows).
func (n *Node) Append(child *Node) *Node {
	child.parent = n
	n.Children = append(n.Children, child)
	return n
}

// Remove detaches the node from its parent, as a dismissed modal would be.
func (n *Node) Remove() {
	if n.parent == nil {
		return
	}
	siblings := n.parent.Children
	for i, c := range siblings {
		if c == n {
			n.parent.Children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	n.parent = nil
}

func (n *Node) Tag() string { return n.TagName }

// Text aggregates the subtree text, innerText-style.
func (n *Node) Text() string {
	var b strings.Builder
	n.collectText(&b)
	return strings.TrimSpace(b.String())
}

func (n *Node) collectText(b *strings.Builder) {
	if n.TextContent != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(n.TextContent)
	}
	for _, c := range n.Children {
		c.collectText(b)
	}
}

func (n *Node) Attribute(name string) string { return n.Attrs[name] }

func (n *Node) Parent() (browser.Element, bool) {
	if n.parent == nil {
		return nil, false
	}
	return n.parent, true
}

func (n *Node) Click() error {
	if n.ClickErr != nil {
		return n.ClickErr
	}
	n.Clicks++
	if n.OnClick != nil {
		n.OnClick()
	}
	return nil
}

func (n *Node) ClickScript() error {
	n.ScriptClicks++
	if n.OnClick != nil {
		n.OnClick()
	}
	return nil
}

func (n *Node) Input(text string) error {
	n.Inputs = append(n.Inputs, text)
	return nil
}

func (n *Node) PressEnter() error {
	n.EnterPresses++
	return nil
}

func (n *Node) Focus() error {
	n.Focuses++
	return nil
}

func (n *Node) walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

func (n *Node) contains(other *Node) bool {
	found := false
	n.walk(func(m *Node) bool {
		if m == other && m != n {
			found = true
			return false
		}
		return true
	})
	return found
}

// Page is the fake page. Roots can be rewritten by tests (or by the OnScroll
// and OnReload hooks) to simulate lazy rendering and refreshes.
type Page struct {
	Root       *Node
	CurrentURL string

	// Redirects maps a navigation target to the URL actually landed on,
	// e.g. the messages URL to a login redirect.
	Redirects   map[string]string
	NavigateErr error

	Navigations []string
	Reloads     int
	Scrolls     []int

	OnScroll func(p *Page)
	OnReload func(p *Page)
}

// NewPage builds a fake page around the given root.
func NewPage(root *Node) *Page {
	return &Page{Root: root}
}

func (p *Page) Navigate(_ context.Context, url string) error {
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.Navigations = append(p.Navigations, url)
	if final, ok := p.Redirects[url]; ok {
		p.CurrentURL = final
	} else {
		p.CurrentURL = url
	}
	return nil
}

func (p *Page) Reload(context.Context) error {
	p.Reloads++
	if p.OnReload != nil {
		p.OnReload(p)
	}
	return nil
}

func (p *Page) URL() string { return p.CurrentURL }

func (p *Page) Find(selector string, _ time.Duration) (browser.Element, bool) {
	matches := p.matchAll(selector)
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0], true
}

func (p *Page) FindAll(selector string) []browser.Element {
	matches := p.matchAll(selector)
	out := make([]browser.Element, len(matches))
	for i, m := range matches {
		out[i] = m
	}
	return out
}

func (p *Page) FindByText(text string, exact bool) (browser.Element, bool) {
	if p.Root == nil {
		return nil, false
	}
	var all []*Node
	p.Root.walk(func(n *Node) bool {
		t := n.Text()
		if exact && t == strings.TrimSpace(text) {
			all = append(all, n)
		} else if !exact && strings.Contains(t, text) {
			all = append(all, n)
		}
		return true
	})
	// Deepest match: one that contains no other match.
	for i := len(all) - 1; i >= 0; i-- {
		deepest := true
		for _, other := range all {
			if other != all[i] && all[i].contains(other) {
				deepest = false
				break
			}
		}
		if deepest {
			return all[i], true
		}
	}
	return nil, false
}

func (p *Page) Scroll(deltaY int) {
	p.Scrolls = append(p.Scrolls, deltaY)
	if p.OnScroll != nil {
		p.OnScroll(p)
	}
}

func (p *Page) matchAll(selector string) []*Node {
	if p.Root == nil {
		return nil
	}
	chain := parseSelector(selector)
	if len(chain) == 0 {
		return nil
	}
	var out []*Node
	p.Root.walk(func(n *Node) bool {
		if matchesChain(n, chain) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// --- minimal CSS selector engine ---

type attrFilter struct {
	name      string
	value     string
	substring bool
}

type simpleSelector struct {
	tag     string
	filters []attrFilter
}

// parseSelector parses "tag[a*=\"v\"] tag2[b=\"w\"]" into a descendant chain.
func parseSelector(s string) []simpleSelector {
	parts := strings.Fields(s)
	chain := make([]simpleSelector, 0, len(parts))
	for _, part := range parts {
		sel := simpleSelector{}
		rest := part
		if idx := strings.IndexByte(rest, '['); idx >= 0 {
			sel.tag = rest[:idx]
			rest = rest[idx:]
		} else {
			sel.tag = rest
			rest = ""
		}
		for strings.HasPrefix(rest, "[") {
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				break
			}
			body := rest[1:end]
			rest = rest[end+1:]

			substring := false
			eq := strings.Index(body, "*=")
			if eq >= 0 {
				substring = true
			} else {
				eq = strings.IndexByte(body, '=')
			}
			if eq < 0 {
				sel.filters = append(sel.filters, attrFilter{name: body})
				continue
			}
			name := body[:eq]
			val := body[eq+1:]
			if substring {
				val = body[eq+2:]
			}
			val = strings.Trim(val, `"'`)
			sel.filters = append(sel.filters, attrFilter{name: name, value: val, substring: substring})
		}
		chain = append(chain, sel)
	}
	return chain
}

func matchesSimple(n *Node, sel simpleSelector) bool {
	if sel.tag != "" && sel.tag != "*" && !strings.EqualFold(sel.tag, n.TagName) {
		return false
	}
	for _, f := range sel.filters {
		got, ok := n.Attrs[f.name]
		if !ok {
			return false
		}
		if f.value == "" && !f.substring {
			continue
		}
		if f.substring {
			if !strings.Contains(got, f.value) {
				return false
			}
		} else if got != f.value {
			return false
		}
	}
	return true
}

// matchesChain requires the node to match the last simple selector and its
// ancestors to match the earlier ones in order.
func matchesChain(n *Node, chain []simpleSelector) bool {
	if !matchesSimple(n, chain[len(chain)-1]) {
		return false
	}
	remaining := chain[:len(chain)-1]
	anc := n.parent
	for len(remaining) > 0 && anc != nil {
		if matchesSimple(anc, remaining[len(remaining)-1]) {
			remaining = remaining[:len(remaining)-1]
		}
		anc = anc.parent
	}
	return len(remaining) == 0
}
