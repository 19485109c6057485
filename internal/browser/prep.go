package browser

import (
	"time"

	"github.com/go-rod/rod"

	"prodex/internal/extract"
)

const (
	maxScrollAttempts   = 4
	maxClicksPerMatcher = 2
	scrollSettle        = 1200 * time.Millisecond
	clickSettle         = time.Second
	cardPollInterval    = 250 * time.Millisecond
)

// popupCloseSelectors matches the dismiss controls of cookie banners,
// newsletter modals, and region pickers seen across storefronts.
var popupCloseSelectors = []string{
	`button[aria-label*="close"]`,
	`button[aria-label*="dismiss"]`,
	`button[class*="close"]`,
	`button[class*="dismiss"]`,
	`[role="dialog"] button`,
	`.close-button`,
	`.modal-close`,
	`.overlay-close`,
	`[data-testid*="close"]`,
	`[data-action*="close"]`,
}

// loadMoreSelectors matches the buttons that append another page of
// results without navigation.
var loadMoreSelectors = []string{
	`button[class*="load"]`,
	`button[id*="load"]`,
	`button[data-test*="load"]`,
	`button[data-testid*="load"]`,
	`button[aria-label*="load"]`,
	`button[class*="more"]`,
	`a[class*="load"]`,
	`div[class*="load-more"]`,
	`[data-action*="loadmore"]`,
}

// dismissPopups clicks up to two visible matches per selector family.
// Everything here is best-effort; a stubborn modal must not fail the job.
func dismissPopups(page *rod.Page) {
	for _, selector := range popupCloseSelectors {
		els, err := page.Elements(selector)
		if err != nil {
			continue
		}
		clicked := 0
		for _, el := range els {
			if clicked >= maxClicksPerMatcher {
				break
			}
			if visible, err := el.Visible(); err != nil || !visible {
				continue
			}
			if _, err := el.Eval(`() => this.click()`); err == nil {
				clicked++
			}
		}
	}
}

// progressiveScroll walks to the bottom of the page in rounds, clicking
// load-more buttons between rounds, and stops early once the document
// height stops growing.
func progressiveScroll(page *rod.Page) {
	lastHeight := pageHeight(page)
	for attempt := 0; attempt < maxScrollAttempts; attempt++ {
		_, _ = page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
		time.Sleep(scrollSettle)

		clickLoadMore(page)

		height := pageHeight(page)
		if height <= lastHeight {
			break
		}
		lastHeight = height
	}
}

// clickLoadMore JS-clicks up to two visible matches per selector; the
// native click path fails on buttons overlapped by sticky headers.
func clickLoadMore(page *rod.Page) {
	for _, selector := range loadMoreSelectors {
		els, err := page.Elements(selector)
		if err != nil {
			continue
		}
		clicked := 0
		for _, el := range els {
			if clicked >= maxClicksPerMatcher {
				break
			}
			if visible, err := el.Visible(); err != nil || !visible {
				continue
			}
			if _, err := el.Eval(`() => this.click()`); err == nil {
				clicked++
				time.Sleep(clickSettle)
			}
		}
	}
}

func pageHeight(page *rod.Page) int {
	obj, err := page.Eval(`() => document.body.scrollHeight`)
	if err != nil {
		return 0
	}
	return obj.Value.Int()
}

// waitForCards polls for any known product card selector until the
// deadline. Absence is not an error: the extraction cascade has
// card-free fallbacks.
func waitForCards(page *rod.Page, wait time.Duration) {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		for _, selector := range extract.CardSelectors {
			if els, err := page.Elements(selector); err == nil && len(els) > 0 {
				return
			}
		}
		time.Sleep(cardPollInterval)
	}
}
