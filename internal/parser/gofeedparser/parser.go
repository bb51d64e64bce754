// Package gofeedparser adapts mmcdole/gofeed to the feed.Parser interface,
// producing a normalized document. Malformed input yields an empty document
// so a bad feed body never aborts a poll cycle.
package gofeedparser

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/amaudy/feedhq/internal/feed"
)

// Parser wraps a gofeed.Parser.
type Parser struct {
	parser *gofeed.Parser
}

// New creates a Parser.
func New() *Parser {
	return &Parser{parser: gofeed.NewParser()}
}

// Parse normalizes raw feed bytes. Parse failures return the zero Document.
func (p *Parser) Parse(data []byte) feed.Document {
	parsed, err := p.parser.Parse(bytes.NewReader(data))
	if err != nil || parsed == nil {
		return feed.Document{}
	}

	doc := feed.Document{
		Title:   parsed.Title,
		Link:    parsed.Link,
		SelfURL: parsed.FeedLink,
		HubURLs: relLinks(data, "hub"),
	}
	if doc.SelfURL == "" {
		if self := relLinks(data, "self"); len(self) > 0 {
			doc.SelfURL = self[0]
		}
	}

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		entry := feed.DocEntry{
			Title:   item.Title,
			Summary: item.Content,
			Link:    item.Link,
		}
		if entry.Summary == "" {
			entry.Summary = item.Description
		}
		// Feed proxies put the real article URL in the GUID.
		if guid := item.GUID; isHTTPURL(guid) && guid != item.Link {
			entry.Permalink = guid
		}
		if item.PublishedParsed != nil {
			entry.Published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			entry.Published = *item.UpdatedParsed
		}
		doc.Entries = append(doc.Entries, entry)
	}
	return doc
}

// relLinks recovers <link rel=...> hrefs from the raw document. gofeed's
// translated model drops link rel attributes, so hub and self links are
// scanned out of the XML tokens directly.
func relLinks(data []byte, rel string) []string {
	var hrefs []string
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity
	for {
		token, err := decoder.Token()
		if err == io.EOF || token == nil {
			break
		}
		if err != nil {
			break
		}
		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "link" {
			continue
		}
		var linkRel, href string
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "rel":
				linkRel = attr.Value
			case "href":
				href = attr.Value
			}
		}
		if strings.EqualFold(linkRel, rel) && href != "" {
			hrefs = append(hrefs, href)
		}
	}
	return hrefs
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
