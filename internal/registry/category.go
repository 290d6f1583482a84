package registry

import (
	"context"
	"slices"
	"sync"

	"github.com/bryan-buckman/feeder/internal/model"
	"github.com/bryan-buckman/feeder/internal/rss"
	log "github.com/sirupsen/logrus"
)

// DefaultAggregateConcurrency bounds parallel channel fetches in one aggregation.
const DefaultAggregateConcurrency = 4

// AggregateOptions controls how a category view is built.
type AggregateOptions struct {
	Concurrency int
	// SkipFailing returns entries from healthy channels and reports the rest as
	// warnings instead of failing the whole view.
	SkipFailing bool
}

// Category is a named group of channels.
type Category struct {
	name     string
	index    int
	channels map[string]*Channel
}

func newCategory(name string, index int) *Category {
	return &Category{name: name, index: index, channels: make(map[string]*Channel)}
}

// Len returns the number of channels.
func (c *Category) Len() int { return len(c.channels) }

// Channel returns the named channel, or nil.
func (c *Category) Channel(name string) *Channel { return c.channels[name] }

// addChannel appends ch after the existing channels. The caller checks name uniqueness.
func (c *Category) addChannel(ch *Channel) {
	ch.index = len(c.channels)
	c.channels[ch.name] = ch
}

// removeChannel deletes the named channel and closes the gap in sibling indices.
func (c *Category) removeChannel(name string) (*Channel, bool) {
	ch, ok := c.channels[name]
	if !ok {
		return nil, false
	}
	delete(c.channels, name)
	c.reindex()
	return ch, true
}

// ordered returns the channels sorted by index.
func (c *Category) ordered() []*Channel {
	out := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	slices.SortFunc(out, func(a, b *Channel) int { return a.index - b.index })
	return out
}

func (c *Category) reindex() {
	for i, ch := range c.ordered() {
		ch.index = i
	}
}

func (c *Category) info() model.CategoryInfo {
	ordered := c.ordered()
	info := model.CategoryInfo{Name: c.name, Index: c.index, Channels: make([]model.ChannelInfo, 0, len(ordered))}
	for _, ch := range ordered {
		info.Channels = append(info.Channels, ch.info())
	}
	return info
}

type channelResult struct {
	entries []model.Entry
	err     error
}

// aggregate works on a detached copy of the category so no registry lock is held
// while fetching.
func aggregate(ctx context.Context, src rss.FeedSource, cat model.CategoryInfo, opts AggregateOptions) (*model.View, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultAggregateConcurrency
	}

	results := make([]channelResult, len(cat.Channels))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, ch := range cat.Channels {
		wg.Add(1)
		go func(i int, ch model.ChannelInfo) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = channelResult{err: &rss.FetchError{URL: ch.URL, Err: ctx.Err()}}
				return
			}
			defer func() { <-sem }()

			items, err := src.Fetch(ctx, ch.URL)
			if err != nil {
				results[i] = channelResult{err: err}
				return
			}
			entries := rss.NewEntries(items)
			for j := range entries {
				entries[j].SourceChannel = ch.Name
			}
			results[i] = channelResult{entries: entries}
		}(i, ch)
	}
	wg.Wait()

	view := &model.View{
		Title:       cat.Name,
		Description: cat.Name + model.AggregatedSuffix,
		Aggregated:  true,
		Entries:     []model.Entry{},
	}
	for i, res := range results {
		if res.err != nil {
			if !opts.SkipFailing {
				return nil, res.err
			}
			log.WithFields(log.Fields{
				"category": cat.Name,
				"channel":  cat.Channels[i].Name,
				"error":    res.err,
			}).Warn("Skipping channel in aggregated view")
			view.Warnings = append(view.Warnings, model.ChannelFailure{
				Channel: cat.Channels[i].Name,
				Error:   res.err.Error(),
			})
			continue
		}
		view.Entries = append(view.Entries, res.entries...)
	}
	SortEntries(view.Entries)
	return view, nil
}

// SortEntries orders entries newest first. Entries without a publish time go last;
// the sort is stable so equal entries keep their input order.
func SortEntries(entries []model.Entry) {
	slices.SortStableFunc(entries, func(a, b model.Entry) int {
		switch {
		case a.PublishedAt == nil && b.PublishedAt == nil:
			return 0
		case a.PublishedAt == nil:
			return 1
		case b.PublishedAt == nil:
			return -1
		default:
			return b.PublishedAt.Compare(*a.PublishedAt)
		}
	})
}
