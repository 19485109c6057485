package dom

import (
	"errors"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

var errClickRoot = errors.New("cannot click the document root")

// rodNode wraps a live browser element. Reads swallow CDP errors (element
// detached mid-scroll, tab navigating away) and return zero values so one
// stale card never aborts a whole page.
type rodNode struct {
	el *rod.Element
}

// WrapElement adapts a rod element to the Node interface.
func WrapElement(el *rod.Element) Node {
	if el == nil {
		return nil
	}
	return &rodNode{el: el}
}

func (n *rodNode) Find(selector string) Node {
	els, err := n.el.Elements(selector)
	if err != nil || len(els) == 0 {
		return nil
	}
	return &rodNode{el: els.First()}
}

func (n *rodNode) FindAll(selector string) []Node {
	els, err := n.el.Elements(selector)
	if err != nil {
		return nil
	}
	return wrapElements(els)
}

func (n *rodNode) FindAllX(xpath string) []Node {
	els, err := n.el.ElementsX(xpath)
	if err != nil {
		return nil
	}
	return wrapElements(els)
}

func (n *rodNode) Attr(name string) string {
	val, err := n.el.Attribute(name)
	if err != nil || val == nil {
		return ""
	}
	return strings.TrimSpace(*val)
}

func (n *rodNode) Text() string {
	text, err := n.el.Text()
	if err != nil {
		return ""
	}
	return collapseWhitespace(text)
}

func (n *rodNode) Tag() string {
	obj, err := n.el.Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return ""
	}
	return obj.Value.Str()
}

func (n *rodNode) Parent() Node {
	parent, err := n.el.Parent()
	if err != nil || parent == nil {
		return nil
	}
	return &rodNode{el: parent}
}

func (n *rodNode) Visible() bool {
	visible, err := n.el.Visible()
	if err != nil {
		return false
	}
	return visible
}

func (n *rodNode) Click() error {
	return n.el.Click(proto.InputMouseButtonLeft, 1)
}

func wrapElements(els rod.Elements) []Node {
	out := make([]Node, 0, len(els))
	for _, el := range els {
		out = append(out, &rodNode{el: el})
	}
	return out
}

// LivePage is a rendered browser tab.
type LivePage struct {
	page *rod.Page
	url  string
}

// WrapPage adapts a rod page loaded from pageURL.
func WrapPage(page *rod.Page, pageURL string) *LivePage {
	return &LivePage{page: page, url: pageURL}
}

func (p *LivePage) Find(selector string) Node {
	els, err := p.page.Elements(selector)
	if err != nil || len(els) == 0 {
		return nil
	}
	return &rodNode{el: els.First()}
}

func (p *LivePage) FindAll(selector string) []Node {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil
	}
	return wrapElements(els)
}

func (p *LivePage) FindAllX(xpath string) []Node {
	els, err := p.page.ElementsX(xpath)
	if err != nil {
		return nil
	}
	return wrapElements(els)
}

func (p *LivePage) Attr(string) string { return "" }

func (p *LivePage) Text() string { return p.BodyText() }

func (p *LivePage) Tag() string { return "html" }

func (p *LivePage) Parent() Node { return nil }

func (p *LivePage) Visible() bool { return true }

func (p *LivePage) Click() error { return errClickRoot }

func (p *LivePage) URL() string {
	if info, err := p.page.Info(); err == nil && info.URL != "" {
		return info.URL
	}
	return p.url
}

func (p *LivePage) BodyText() string {
	els, err := p.page.Elements("body")
	if err != nil || len(els) == 0 {
		return ""
	}
	text, err := els.First().Text()
	if err != nil {
		return ""
	}
	return collapseWhitespace(text)
}

// Eval runs a JavaScript function expression in the page and renders the
// result as a string (JSON for non-string values).
func (p *LivePage) Eval(js string) (string, error) {
	obj, err := p.page.Eval(js)
	if err != nil {
		return "", err
	}
	if obj == nil || obj.Value.Nil() {
		return "", nil
	}
	if s := obj.Value.Str(); s != "" {
		return s, nil
	}
	return obj.Value.JSON("", ""), nil
}
