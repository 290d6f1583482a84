// Package registry owns the category/channel tree and enforces its naming and
// ordering invariants.
//
// Category names are unique in the registry, channel names are unique within their
// category, every channel belongs to exactly one category, and sibling indices are
// dense and zero-based. Expected failures are reported as *ConflictError and leave
// the registry unchanged; fetch failures surface as the rss package error types.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/bryan-buckman/feeder/internal/model"
	"github.com/bryan-buckman/feeder/internal/rss"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidName is returned for empty category or channel names.
var ErrInvalidName = errors.New("name must not be empty")

// Registry is the aggregate root of all categories and channels.
// It is safe for concurrent use; writers are serialized.
type Registry struct {
	mu         sync.RWMutex
	src        rss.FeedSource
	opts       AggregateOptions
	categories map[string]*Category
}

// New creates an empty registry reading feeds through src.
func New(src rss.FeedSource, opts AggregateOptions) *Registry {
	return &Registry{
		src:        src,
		opts:       opts,
		categories: make(map[string]*Category),
	}
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	return nil
}

// --- Category operations ---

// AddCategory appends a new empty category.
func (r *Registry) AddCategory(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.categories[name]; ok {
		return conflict("add category", CategoryExists, name, "")
	}
	r.categories[name] = newCategory(name, len(r.categories))
	log.WithField("category", name).Info("Category added")
	return nil
}

// RenameCategory re-keys a category, keeping its position and channels.
func (r *Registry) RenameCategory(oldName, newName string) error {
	const op = "rename category"
	if err := validName(newName); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cat, ok := r.categories[oldName]
	if !ok {
		return conflict(op, CategoryNotFound, oldName, "")
	}
	if oldName == newName {
		return nil
	}
	if _, taken := r.categories[newName]; taken {
		return conflict(op, CategoryExists, newName, "")
	}
	delete(r.categories, oldName)
	cat.name = newName
	r.categories[newName] = cat
	log.WithFields(log.Fields{"category": oldName, "new_name": newName}).Info("Category renamed")
	return nil
}

// RemoveCategory deletes an empty category and closes the gap in sibling indices.
func (r *Registry) RemoveCategory(name string) error {
	const op = "remove category"
	r.mu.Lock()
	defer r.mu.Unlock()

	cat, ok := r.categories[name]
	if !ok {
		return conflict(op, CategoryNotFound, name, "")
	}
	if cat.Len() > 0 {
		return conflict(op, CategoryNotEmpty, name, "")
	}
	delete(r.categories, name)
	r.reindexLocked()
	log.WithField("category", name).Info("Category removed")
	return nil
}

// ListCategoryNames returns category names in position order.
func (r *Registry) ListCategoryNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.orderedLocked(), func(c *Category, _ int) string { return c.name })
}

// Tree returns the whole category/channel structure in position order.
func (r *Registry) Tree() []model.CategoryInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.orderedLocked(), func(c *Category, _ int) model.CategoryInfo { return c.info() })
}

// AggregatedView fetches every channel of the category and merges their entries.
func (r *Registry) AggregatedView(ctx context.Context, categoryName string) (*model.View, error) {
	return r.AggregatedViewWith(ctx, categoryName, r.opts)
}

// AggregatedViewWith is AggregatedView with per-call options.
func (r *Registry) AggregatedViewWith(ctx context.Context, categoryName string, opts AggregateOptions) (*model.View, error) {
	r.mu.RLock()
	cat, ok := r.categories[categoryName]
	if !ok {
		r.mu.RUnlock()
		return nil, conflict("aggregated view", CategoryNotFound, categoryName, "")
	}
	info := cat.info()
	r.mu.RUnlock()

	return aggregate(ctx, r.src, info, opts)
}

// --- Channel operations ---

// ValidateChannel checks that feedURL is well formed, reachable and parseable.
// It touches no registry state and holds no lock.
func (r *Registry) ValidateChannel(ctx context.Context, feedURL string) error {
	if _, err := rss.ValidateURL(feedURL); err != nil {
		return err
	}
	if _, err := r.src.Fetch(ctx, feedURL); err != nil {
		return err
	}
	return nil
}

// AddChannel validates the feed with a live fetch and then appends the channel to
// the category. The fetch runs outside the registry lock, so preconditions are
// checked again before committing.
func (r *Registry) AddChannel(ctx context.Context, name, feedURL, categoryName string) error {
	const op = "add channel"
	if err := validName(name); err != nil {
		return err
	}

	r.mu.RLock()
	err := r.checkAddChannelLocked(op, name, categoryName)
	r.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := r.ValidateChannel(ctx, feedURL); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkAddChannelLocked(op, name, categoryName); err != nil {
		return err
	}
	r.categories[categoryName].addChannel(&Channel{name: name, url: feedURL})
	log.WithFields(log.Fields{
		"category": categoryName,
		"channel":  name,
		"url":      feedURL,
	}).Info("Channel added")
	return nil
}

func (r *Registry) checkAddChannelLocked(op, name, categoryName string) error {
	cat, ok := r.categories[categoryName]
	if !ok {
		return conflict(op, CategoryNotFound, categoryName, name)
	}
	if cat.Channel(name) != nil {
		return conflict(op, ChannelExists, categoryName, name)
	}
	return nil
}

// RenameChannel renames a channel within its category, keeping its position.
func (r *Registry) RenameChannel(categoryName, oldName, newName string) error {
	const op = "rename channel"
	if err := validName(newName); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cat, ch, err := r.lookupLocked(op, categoryName, oldName)
	if err != nil {
		return err
	}
	if oldName == newName {
		return nil
	}
	if cat.Channel(newName) != nil {
		return conflict(op, ChannelExists, categoryName, newName)
	}
	delete(cat.channels, oldName)
	ch.name = newName
	cat.channels[newName] = ch
	log.WithFields(log.Fields{
		"category": categoryName,
		"channel":  oldName,
		"new_name": newName,
	}).Info("Channel renamed")
	return nil
}

// ChangeChannelURL points a channel at a new feed URL. The URL must be well formed;
// reachability is checked on the next read.
func (r *Registry) ChangeChannelURL(categoryName, name, feedURL string) error {
	const op = "change channel url"
	if _, err := rss.ValidateURL(feedURL); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ch, err := r.lookupLocked(op, categoryName, name)
	if err != nil {
		return err
	}
	ch.url = feedURL
	log.WithFields(log.Fields{
		"category": categoryName,
		"channel":  name,
		"url":      feedURL,
	}).Info("Channel URL changed")
	return nil
}

// MoveChannel re-parents a channel to the end of another category. Either every
// precondition holds and the move completes, or nothing changes.
func (r *Registry) MoveChannel(name, fromCategory, toCategory string) error {
	const op = "move channel"
	r.mu.Lock()
	defer r.mu.Unlock()

	from, _, err := r.lookupLocked(op, fromCategory, name)
	if err != nil {
		return err
	}
	to, ok := r.categories[toCategory]
	if !ok {
		return conflict(op, CategoryNotFound, toCategory, name)
	}
	if to.Channel(name) != nil {
		return conflict(op, ChannelExists, toCategory, name)
	}

	ch, _ := from.removeChannel(name)
	to.addChannel(ch)
	log.WithFields(log.Fields{
		"channel": name,
		"from":    fromCategory,
		"to":      toCategory,
	}).Info("Channel moved")
	return nil
}

// RemoveChannel deletes a channel and closes the gap in sibling indices.
func (r *Registry) RemoveChannel(name, categoryName string) error {
	const op = "remove channel"
	r.mu.Lock()
	defer r.mu.Unlock()

	cat, _, err := r.lookupLocked(op, categoryName, name)
	if err != nil {
		return err
	}
	cat.removeChannel(name)
	log.WithFields(log.Fields{"category": categoryName, "channel": name}).Info("Channel removed")
	return nil
}

// ChannelInfo describes one channel without fetching it.
func (r *Registry) ChannelInfo(categoryName, channelName string) (model.ChannelInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ch, err := r.lookupLocked("channel info", categoryName, channelName)
	if err != nil {
		return model.ChannelInfo{}, err
	}
	return ch.info(), nil
}

// ChannelView fetches a single channel. Entries are not tagged with a source.
func (r *Registry) ChannelView(ctx context.Context, categoryName, channelName string) (*model.View, error) {
	r.mu.RLock()
	_, ch, err := r.lookupLocked("channel view", categoryName, channelName)
	if err != nil {
		r.mu.RUnlock()
		return nil, err
	}
	detached := *ch
	r.mu.RUnlock()

	entries, err := detached.FetchEntries(ctx, r.src)
	if err != nil {
		return nil, err
	}
	return &model.View{
		Title:       detached.name,
		Description: detached.url,
		Entries:     entries,
	}, nil
}

// --- Snapshots ---

// Snapshot returns the persisted form of the registry.
func (r *Registry) Snapshot() *model.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &model.Snapshot{Categories: make([]model.CategorySnapshot, 0, len(r.categories))}
	for _, cat := range r.orderedLocked() {
		snap.Categories = append(snap.Categories, model.CategorySnapshot{
			Name:  cat.name,
			Index: cat.index,
			Channels: lo.Map(cat.ordered(), func(ch *Channel, _ int) model.ChannelSnapshot {
				return model.ChannelSnapshot{Name: ch.name, URL: ch.url, Index: ch.index}
			}),
		})
	}
	return snap
}

// FromSnapshot rebuilds a registry without fetching. Channels were validated when
// they were first added. Stored indices give the order; they are re-densified.
func FromSnapshot(src rss.FeedSource, opts AggregateOptions, snap *model.Snapshot) (*Registry, error) {
	r := New(src, opts)
	if snap == nil {
		return r, nil
	}

	cats := slices.Clone(snap.Categories)
	slices.SortStableFunc(cats, func(a, b model.CategorySnapshot) int { return a.Index - b.Index })
	for _, cs := range cats {
		if err := validName(cs.Name); err != nil {
			return nil, fmt.Errorf("snapshot category: %w", err)
		}
		if _, dup := r.categories[cs.Name]; dup {
			return nil, fmt.Errorf("snapshot: duplicate category %q", cs.Name)
		}
		cat := newCategory(cs.Name, len(r.categories))
		r.categories[cs.Name] = cat

		chans := slices.Clone(cs.Channels)
		slices.SortStableFunc(chans, func(a, b model.ChannelSnapshot) int { return a.Index - b.Index })
		for _, chs := range chans {
			if err := validName(chs.Name); err != nil {
				return nil, fmt.Errorf("snapshot channel in %q: %w", cs.Name, err)
			}
			if cat.Channel(chs.Name) != nil {
				return nil, fmt.Errorf("snapshot: duplicate channel %q in category %q", chs.Name, cs.Name)
			}
			cat.addChannel(&Channel{name: chs.Name, url: chs.URL})
		}
	}
	return r, nil
}

// --- Helpers ---

func (r *Registry) lookupLocked(op, categoryName, channelName string) (*Category, *Channel, error) {
	cat, ok := r.categories[categoryName]
	if !ok {
		return nil, nil, conflict(op, CategoryNotFound, categoryName, channelName)
	}
	ch := cat.Channel(channelName)
	if ch == nil {
		return nil, nil, conflict(op, ChannelNotFound, categoryName, channelName)
	}
	return cat, ch, nil
}

func (r *Registry) orderedLocked() []*Category {
	out := lo.Values(r.categories)
	slices.SortFunc(out, func(a, b *Category) int { return a.index - b.index })
	return out
}

func (r *Registry) reindexLocked() {
	for i, cat := range r.orderedLocked() {
		cat.index = i
	}
}
