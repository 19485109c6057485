package extract

import (
	"prodex/internal/dom"
	"prodex/internal/normalize"
	"prodex/internal/types"
	"prodex/internal/validate"
)

// linkStrategy is the last resort: visible anchors with a product-like
// path and an image in the anchor or its parent.
type linkStrategy struct {
	v *validate.PageValidator
}

func (s *linkStrategy) name() string { return "links_with_images" }

func (s *linkStrategy) extract(page dom.Page, maxItems int) []*types.Candidate {
	var out []*types.Candidate
	for _, a := range page.FindAll("a[href]") {
		if !a.Visible() {
			continue
		}
		if dom.InBlacklistedSection(a, s.v.IsBlacklistedSection, validate.MaxAncestorHops) {
			continue
		}
		href := a.Attr("href")
		if !s.v.IsPotentialProductHref(href) {
			continue
		}

		img := a.Find(cardImageSelector)
		if img == nil {
			if parent := a.Parent(); parent != nil {
				img = parent.Find(cardImageSelector)
			}
		}
		if img == nil {
			continue
		}

		c := &types.Candidate{
			Title:      normalize.CleanText(firstOf(a.Attr("title"), a.Text())),
			ProductURL: normalize.AbsoluteURL(page.URL(), href),
		}
		src := firstOf(
			img.Attr("src"),
			img.Attr("data-src"),
			img.Attr("data-original"),
			img.Attr("data-srcset"),
		)
		if src != "" {
			c.ImageURL = normalize.AbsoluteURL(page.URL(), src)
		}

		if !s.v.Accept(c) {
			continue
		}
		out = append(out, c)
		if len(out) >= maxItems {
			break
		}
	}
	return out
}
