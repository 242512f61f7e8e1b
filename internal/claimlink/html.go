package claimlink

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FindLinksInHTML extracts every valid claim link referenced by an anchor in
// an HTML document, e.g. a delivered e-mail. Duplicates are dropped and
// anchors that do not decode are skipped.
func FindLinksInHTML(r io.Reader) ([]ClaimLink, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	seen := make(map[ClaimLink]struct{})
	var links []ClaimLink
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.Contains(href, ClaimPath) {
			return
		}
		link, err := Decode(href)
		if err != nil {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links, nil
}
