package registry

import (
	"context"

	"github.com/bryan-buckman/feeder/internal/model"
	"github.com/bryan-buckman/feeder/internal/rss"
)

// Channel is one subscribed feed.
type Channel struct {
	name  string
	url   string
	index int
}

// FetchEntries fetches the feed and returns its normalized entries.
// Nothing is cached: each call reads the live source.
func (c *Channel) FetchEntries(ctx context.Context, src rss.FeedSource) ([]model.Entry, error) {
	items, err := src.Fetch(ctx, c.url)
	if err != nil {
		return nil, err
	}
	return rss.NewEntries(items), nil
}

func (c *Channel) info() model.ChannelInfo {
	return model.ChannelInfo{Name: c.name, URL: c.url, Index: c.index}
}
