package rss

import (
	"regexp"
	"strings"

	"github.com/bryan-buckman/feeder/internal/model"
	"github.com/mmcdole/gofeed"
)

// tagPattern matches anything between angle brackets. It is not HTML aware.
var tagPattern = regexp.MustCompile(`(?s)<.*?>`)

// StripTags removes markup tags from s and trims surrounding whitespace.
func StripTags(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}

// NewEntry normalizes a raw item into an Entry. SourceChannel is left empty.
func NewEntry(item model.RawItem) model.Entry {
	return model.Entry{
		Title:       item.Title,
		Link:        item.Link,
		PublishedAt: item.PublishedAt,
		Description: StripTags(item.Description),
		Author:      item.Author,
	}
}

// NewEntries normalizes a list of raw items.
func NewEntries(items []model.RawItem) []model.Entry {
	entries := make([]model.Entry, 0, len(items))
	for _, it := range items {
		entries = append(entries, NewEntry(it))
	}
	return entries
}

func rawItem(item *gofeed.Item) model.RawItem {
	raw := model.RawItem{
		Title:       item.Title,
		Link:        item.Link,
		PublishedAt: item.PublishedParsed,
		Description: item.Description,
	}
	if raw.Description == "" {
		raw.Description = item.Content
	}
	if item.Author != nil {
		raw.Author = item.Author.Name
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		raw.Author = item.Authors[0].Name
	}
	return raw
}
