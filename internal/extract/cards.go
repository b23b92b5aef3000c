// Package extract parses marketplace HTML with goquery.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// CardSelector matches one result card on a search page.
	CardSelector = ".product-card"
	// EmptyStateSelector matches the "nothing found" markers on a search page.
	EmptyStateSelector = ".not-found-search, .catalog-page__empty"
	// ContentSelector signals that a search page has rendered something worth parsing.
	ContentSelector = CardSelector + ", " + EmptyStateSelector
)

// Card is one search result. Index is 0-based across the whole crawl.
type Card struct {
	Index int
	HTML  string
}

// Cards returns the result cards of a search page in DOM order, numbered from offset.
// An empty document or a page that shows an empty state yields no cards.
func Cards(html string, offset int) ([]Card, error) {
	if strings.TrimSpace(html) == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	if doc.Find(EmptyStateSelector).Length() > 0 {
		return nil, nil
	}

	sel := doc.Find(CardSelector)
	cards := make([]Card, 0, sel.Length())
	var serializeErr error
	sel.EachWithBreak(func(i int, s *goquery.Selection) bool {
		inner, err := s.Html()
		if err != nil {
			serializeErr = fmt.Errorf("serialize card %d: %w", i, err)
			return false
		}
		cards = append(cards, Card{Index: offset + i, HTML: inner})
		return true
	})
	if serializeErr != nil {
		return nil, serializeErr
	}
	return cards, nil
}

// FindTarget reports the in-page index of the first card whose markup contains id.
// The check is plain substring containment, so unrelated numbers that embed id also match.
func FindTarget(cards []Card, id string) (bool, int) {
	if id == "" {
		return false, -1
	}
	for i, c := range cards {
		if strings.Contains(c.HTML, id) {
			return true, i
		}
	}
	return false, -1
}
