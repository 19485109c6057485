// Package dom abstracts the rendered page tree behind a small capability
// interface so extraction strategies run identically against a live browser
// tab and a statically fetched document.
package dom

// Node is one element in a rendered page. Read accessors never fail: a
// backend that cannot answer (detached element, static document) returns
// the zero value so strategies can fall through to the next source.
type Node interface {
	// Find returns the first descendant matching the CSS selector, or nil.
	Find(selector string) Node
	// FindAll returns all descendants matching the CSS selector.
	FindAll(selector string) []Node
	// FindAllX returns all descendants matching the XPath expression.
	FindAllX(xpath string) []Node
	// Attr returns the trimmed attribute value, or "" when absent.
	Attr(name string) string
	// Text returns the whitespace-collapsed visible text of the subtree.
	Text() string
	// Tag returns the lowercase element name, or "" when unknown.
	Tag() string
	// Parent returns the parent element, or nil at the document root.
	Parent() Node
	// Visible reports whether the element is rendered. Static backends
	// approximate this from markup alone.
	Visible() bool
	// Click dispatches a click on the element where the backend supports it.
	Click() error
}

// Page is the document root. It adds page-level capabilities that only make
// sense once per document.
type Page interface {
	Node

	// URL returns the address the page was loaded from.
	URL() string
	// BodyText returns the collapsed text of the document body.
	BodyText() string
	// Eval runs a JavaScript expression and returns its result rendered as
	// a string. Static pages return ErrStaticPage.
	Eval(js string) (string, error)
}

// InBlacklistedSection walks up to maxHops ancestors of n and reports
// whether any is one of the tags in blacklisted (lowercase tag -> true).
// Cards inside page chrome are dropped before field extraction runs.
func InBlacklistedSection(n Node, blacklisted func(tag string) bool, maxHops int) bool {
	cur := n.Parent()
	for hop := 0; cur != nil && hop < maxHops; hop++ {
		if blacklisted(cur.Tag()) {
			return true
		}
		cur = cur.Parent()
	}
	return false
}
