package extract

import (
	"prodex/internal/dom"
	"prodex/internal/types"
	"prodex/internal/validate"
)

// heuristicStrategy scans generic containers for anything that walks and
// quacks like a product card. Runs only when the structured strategies
// came up empty.
type heuristicStrategy struct {
	v *validate.PageValidator
}

func (s *heuristicStrategy) name() string { return "heuristic" }

func (s *heuristicStrategy) extract(page dom.Page, maxItems int) []*types.Candidate {
	var out []*types.Candidate
	for _, container := range page.FindAll("main, section, div") {
		if !container.Visible() {
			continue
		}
		if dom.InBlacklistedSection(container, s.v.IsBlacklistedSection, validate.MaxAncestorHops) {
			continue
		}
		for _, card := range container.FindAll("li, div, article") {
			if !card.Visible() {
				continue
			}
			if dom.InBlacklistedSection(card, s.v.IsBlacklistedSection, validate.MaxAncestorHops) {
				continue
			}
			if !looksLikeCard(card) {
				continue
			}
			c := extractCard(card, page.URL())
			if c == nil || !s.v.Accept(c) {
				continue
			}
			out = append(out, c)
			if len(out) >= maxItems {
				return out
			}
		}
	}
	return out
}
