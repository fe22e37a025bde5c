// Package source turns a page index into the matched item elements of one
// listing page. Every engine acquires its fetch context per page and
// releases it before Fetch returns.
package source

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// Page is the result of fetching one listing page.
type Page struct {
	Index int
	// URL is the final page URL after redirects; relative links in the
	// elements resolve against it.
	URL      *url.URL
	Elements []*goquery.Selection
}

// Empty reports whether the page matched no items, which signals that
// there are no further pages.
func (p *Page) Empty() bool {
	return p == nil || len(p.Elements) == 0
}

func selectionsOf(sel *goquery.Selection) []*goquery.Selection {
	out := make([]*goquery.Selection, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, s)
	})
	return out
}
