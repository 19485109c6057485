package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"prodex/internal/types"
)

// staticNode wraps a goquery selection over a parsed document. XPath
// queries run against the underlying html.Node tree via htmlquery.
type staticNode struct {
	sel *goquery.Selection
}

func wrapSelection(sel *goquery.Selection) *staticNode {
	if sel == nil || sel.Length() == 0 {
		return nil
	}
	return &staticNode{sel: sel}
}

func (n *staticNode) Find(selector string) Node {
	found := n.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil
	}
	return &staticNode{sel: found}
}

func (n *staticNode) FindAll(selector string) []Node {
	var out []Node
	n.sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &staticNode{sel: s})
	})
	return out
}

func (n *staticNode) FindAllX(xpath string) []Node {
	var out []Node
	for _, root := range n.sel.Nodes {
		found, err := htmlquery.QueryAll(root, xpath)
		if err != nil {
			continue
		}
		for _, match := range found {
			if match == nil {
				continue
			}
			out = append(out, &staticNode{sel: goquery.NewDocumentFromNode(match).Selection})
		}
	}
	return out
}

func (n *staticNode) Attr(name string) string {
	val, _ := n.sel.Attr(name)
	return strings.TrimSpace(val)
}

func (n *staticNode) Text() string {
	return collapseWhitespace(n.sel.Text())
}

func (n *staticNode) Tag() string {
	node := n.sel.Get(0)
	if node == nil || node.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(node.Data)
}

func (n *staticNode) Parent() Node {
	parent := n.sel.Parent()
	if parent.Length() == 0 {
		return nil
	}
	node := parent.Get(0)
	if node == nil || node.Type != html.ElementNode {
		return nil
	}
	return &staticNode{sel: parent}
}

// Visible approximates rendering from markup: hidden attribute, inline
// display:none, or the conventional type=hidden input.
func (n *staticNode) Visible() bool {
	if _, hidden := n.sel.Attr("hidden"); hidden {
		return false
	}
	style, _ := n.sel.Attr("style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
		return false
	}
	if typ, _ := n.sel.Attr("type"); strings.EqualFold(typ, "hidden") {
		return false
	}
	return true
}

func (n *staticNode) Click() error { return types.ErrStaticPage }

// StaticPage is a document parsed from fetched HTML. It backs the static
// renderer and lets extraction tests run without a browser.
type StaticPage struct {
	staticNode
	url string
}

// NewStaticPage parses rawHTML into a queryable page rooted at pageURL.
func NewStaticPage(pageURL, rawHTML string) (*StaticPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}
	return &StaticPage{staticNode: staticNode{sel: doc.Selection}, url: pageURL}, nil
}

func (p *StaticPage) URL() string { return p.url }

func (p *StaticPage) BodyText() string {
	body := p.sel.Find("body")
	if body.Length() == 0 {
		return p.Text()
	}
	return collapseWhitespace(body.Text())
}

func (p *StaticPage) Eval(string) (string, error) { return "", types.ErrStaticPage }

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
