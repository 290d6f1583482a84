// Package model defines shared data structures.
package model

import "time"

// DateLayout is the presentation format for entry publish times.
const DateLayout = "02.01.2006, 15:04"

// AggregatedSuffix is appended to a category name to describe its aggregated view.
const AggregatedSuffix = " (all headlines)"

// RawItem is a single item as returned by a feed source, before normalization.
type RawItem struct {
	Title       string
	Link        string
	PublishedAt *time.Time
	Description string
	Author      string
}

// Entry represents a single normalized feed item.
type Entry struct {
	Title         string     `json:"title"`
	Link          string     `json:"link"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	Description   string     `json:"description,omitempty"`
	Author        string     `json:"author,omitempty"`
	SourceChannel string     `json:"source_channel,omitempty"` // set only in aggregated views
}

// Date returns the publish time in local time using DateLayout, or "" when unknown.
func (e Entry) Date() string {
	if e.PublishedAt == nil {
		return ""
	}
	return e.PublishedAt.Local().Format(DateLayout)
}

// ChannelFailure records a channel that could not be fetched during a partial aggregation.
type ChannelFailure struct {
	Channel string `json:"channel"`
	Error   string `json:"error"`
}

// View is what the presentation layer renders for a channel or a category.
type View struct {
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Aggregated  bool             `json:"aggregated"`
	Entries     []Entry          `json:"entries"`
	Warnings    []ChannelFailure `json:"warnings,omitempty"`
}

// ChannelInfo is a read-only description of a channel for tree rendering.
type ChannelInfo struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Index int    `json:"index"`
}

// CategoryInfo represents a category containing its channels for tree rendering.
type CategoryInfo struct {
	Name     string        `json:"name"`
	Index    int           `json:"index"`
	Channels []ChannelInfo `json:"channels"`
}

// Snapshot is the persisted state of the whole registry.
type Snapshot struct {
	Categories []CategorySnapshot
}

// CategorySnapshot is the persisted form of a category.
type CategorySnapshot struct {
	Name     string
	Index    int
	Channels []ChannelSnapshot
}

// ChannelSnapshot is the persisted form of a channel.
type ChannelSnapshot struct {
	Name  string
	URL   string
	Index int
}

// Default seed used when no snapshot has ever been saved.
const (
	DefaultCategoryName = "Category"
	DefaultChannelName  = "BBC"
	DefaultChannelURL   = "http://feeds.bbci.co.uk/news/rss.xml"
)

// DefaultSnapshot returns the first-run state.
func DefaultSnapshot() *Snapshot {
	return &Snapshot{
		Categories: []CategorySnapshot{{
			Name: DefaultCategoryName,
			Channels: []ChannelSnapshot{{
				Name: DefaultChannelName,
				URL:  DefaultChannelURL,
			}},
		}},
	}
}
