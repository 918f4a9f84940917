package browser

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// rodPage adapts a rod.Page to the Page capability surface. All rod-specific
// behavior lives here so the resolver and executor stay DOM-library agnostic.
type rodPage struct {
	page       *rod.Page
	navTimeout time.Duration
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx).Timeout(p.navTimeout)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	// Load completion is best-effort; slow third-party assets should not
	// fail the whole navigation.
	_ = pg.WaitLoad()
	return nil
}

func (p *rodPage) Reload(ctx context.Context) error {
	pg := p.page.Context(ctx).Timeout(p.navTimeout)
	if err := pg.Reload(); err != nil {
		return err
	}
	_ = pg.WaitLoad()
	return nil
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Find(selector string, timeout time.Duration) (Element, bool) {
	el, err := p.page.Timeout(timeout).Element(selector)
	if err != nil {
		return nil, false
	}
	return &rodElement{el: el}, true
}

func (p *rodPage) FindAll(selector string) []Element {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out
}

// findByTextJS picks the deepest element whose text content matches, so a
// query for a nickname lands on the label rather than some huge ancestor.
const findByTextJS = `(want, exact) => {
	const matches = (el) => {
		const t = (el.textContent || '').trim();
		return exact ? t === want : t.includes(want);
	};
	const all = Array.from(document.querySelectorAll('*')).filter(matches);
	for (let i = all.length - 1; i >= 0; i--) {
		const el = all[i];
		if (!all.some(o => o !== el && el.contains(o))) return el;
	}
	return null;
}`

func (p *rodPage) FindByText(text string, exact bool) (Element, bool) {
	el, err := p.page.Timeout(2 * time.Second).ElementByJS(rod.Eval(findByTextJS, text, exact))
	if err != nil {
		return nil, false
	}
	return &rodElement{el: el}, true
}

func (p *rodPage) Scroll(deltaY int) {
	_, _ = p.page.Eval(`(dy) => window.scrollBy(0, dy)`, deltaY)
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Tag() string {
	obj, err := e.el.Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return ""
	}
	return obj.Value.Str()
}

func (e *rodElement) Text() string {
	s, err := e.el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func (e *rodElement) Attribute(name string) string {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return *v
}

func (e *rodElement) Parent() (Element, bool) {
	parent, err := e.el.Parent()
	if err != nil || parent == nil {
		return nil, false
	}
	return &rodElement{el: parent}, true
}

func (e *rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) ClickScript() error {
	_, err := e.el.Eval(`() => this.click()`)
	return err
}

func (e *rodElement) Input(text string) error {
	return e.el.Input(text)
}

func (e *rodElement) PressEnter() error {
	return e.el.Type(input.Enter)
}

func (e *rodElement) Focus() error {
	return e.el.Focus()
}
