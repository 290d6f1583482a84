// Package opml handles importing and exporting OPML files.
package opml

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/bryan-buckman/feeder/internal/model"
	"github.com/bryan-buckman/feeder/internal/registry"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// UnfiledCategory receives feeds that sit outside any folder in an imported document.
const UnfiledCategory = "Imported"

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (folder or feed).
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// FeedEntry represents a flattened feed with its folder path.
type FeedEntry struct {
	FolderPath []string // e.g., ["Tech", "Google"]
	Title      string
	URL        string
}

// Category returns the registry category an entry is imported into: its top-level folder.
func (e FeedEntry) Category() string {
	if len(e.FolderPath) == 0 || e.FolderPath[0] == "" {
		return UnfiledCategory
	}
	return e.FolderPath[0]
}

// Parse reads an OPML document and returns a flat list of FeedEntry.
func Parse(r io.Reader) ([]FeedEntry, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	var entries []FeedEntry
	var walk func(outlines []Outline, path []string)
	walk = func(outlines []Outline, path []string) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				// It's a feed.
				title := o.Title
				if title == "" {
					title = o.Text
				}
				if title == "" {
					title = o.XMLURL
				}
				entries = append(entries, FeedEntry{
					FolderPath: append([]string{}, path...),
					Title:      title,
					URL:        o.XMLURL,
				})
			} else if len(o.Outlines) > 0 {
				// It's a folder.
				name := o.Text
				if name == "" {
					name = o.Title
				}
				walk(o.Outlines, append(path, name))
			}
		}
	}
	walk(doc.Body.Outlines, nil)
	return entries, nil
}

// Export generates an OPML document with one folder outline per category, in
// position order.
func Export(title string, tree []model.CategoryInfo) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123Z),
		},
	}
	doc.Body.Outlines = lo.Map(tree, func(c model.CategoryInfo, _ int) Outline {
		return Outline{
			Text:  c.Name,
			Title: c.Name,
			Outlines: lo.Map(c.Channels, func(ch model.ChannelInfo, _ int) Outline {
				return Outline{Text: ch.Name, Title: ch.Name, Type: "rss", XMLURL: ch.URL}
			}),
		}
	})

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}

// ImportResult summarizes an import.
type ImportResult struct {
	Total    int `json:"total"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"` // same name and URL already present
	Failed   int `json:"failed"`  // unreachable, unparseable or name taken by another feed
}

// Import adds every feed of entries to reg, creating categories as needed. Each
// channel is validated by the registry; individual failures are counted, not fatal.
func Import(ctx context.Context, reg *registry.Registry, entries []FeedEntry) ImportResult {
	res := ImportResult{Total: len(entries)}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			res.Failed += res.Total - res.Imported - res.Skipped - res.Failed
			break
		}
		category := entry.Category()
		created := false
		if err := reg.AddCategory(category); err == nil {
			created = true
		} else if !registry.IsConflict(err, registry.CategoryExists) {
			log.WithFields(log.Fields{"category": category, "error": err}).Warn("Error creating category")
			res.Failed++
			continue
		}
		err := reg.AddChannel(ctx, entry.Title, entry.URL, category)
		switch {
		case err == nil:
			res.Imported++
		case registry.IsConflict(err, registry.ChannelExists):
			if existing, lookupErr := reg.ChannelInfo(category, entry.Title); lookupErr == nil && existing.URL == entry.URL {
				res.Skipped++
				continue
			}
			log.WithFields(log.Fields{
				"category": category,
				"channel":  entry.Title,
				"url":      entry.URL,
			}).Warn("Channel name already used by a different feed")
			res.Failed++
		default:
			log.WithFields(log.Fields{
				"category": category,
				"channel":  entry.Title,
				"url":      entry.URL,
				"error":    err,
			}).Warn("Error importing feed")
			res.Failed++
			if created {
				// Fails harmlessly if something was added to it meanwhile.
				_ = reg.RemoveCategory(category)
			}
		}
	}
	return res
}
