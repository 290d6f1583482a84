// Package rss provides feed fetching and parsing.
package rss

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bryan-buckman/feeder/internal/model"
	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"
)

// FeedSource fetches the current items of a feed.
type FeedSource interface {
	Fetch(ctx context.Context, feedURL string) ([]model.RawItem, error)
}

// Defaults for Options fields left at zero.
const (
	DefaultTimeout = 10 * time.Second
	// MaxConcurrencyPerDomain limits parallel requests to any single domain
	MaxConcurrencyPerDomain = 2
	// DelayBetweenDomainRequests is the minimum delay between requests to the same domain
	DelayBetweenDomainRequests = 500 * time.Millisecond
	DefaultUserAgent           = "feeder/1.0"
)

// Options configures a Fetcher.
type Options struct {
	Timeout       time.Duration
	UserAgent     string
	PerDomain     int
	DomainDelay   time.Duration
	NoDomainDelay bool // disables DomainDelay entirely
}

// domainLimiter controls rate limiting per domain to avoid overwhelming hosts.
type domainLimiter struct {
	mu          sync.Mutex
	perDomain   int
	delay       time.Duration
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

func newDomainLimiter(perDomain int, delay time.Duration) *domainLimiter {
	return &domainLimiter{
		perDomain:   perDomain,
		delay:       delay,
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// acquire gets a slot for the domain, blocking if necessary.
// It also enforces the minimum delay between requests to the same domain.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	dl.mu.Lock()
	sem, ok := dl.semaphores[domain]
	if !ok {
		sem = make(chan struct{}, dl.perDomain)
		dl.semaphores[domain] = sem
	}
	dl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if dl.delay <= 0 {
		return nil
	}

	dl.mu.Lock()
	lastReq := dl.lastRequest[domain]
	dl.mu.Unlock()

	if !lastReq.IsZero() {
		if elapsed := time.Since(lastReq); elapsed < dl.delay {
			select {
			case <-time.After(dl.delay - elapsed):
			case <-ctx.Done():
				<-sem
				return ctx.Err()
			}
		}
	}
	return nil
}

// release returns a slot for the domain and records the request time.
func (dl *domainLimiter) release(domain string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.lastRequest[domain] = time.Now()
	if sem, ok := dl.semaphores[domain]; ok {
		<-sem
	}
}

// Fetcher is the gofeed-backed FeedSource.
type Fetcher struct {
	client        *http.Client
	timeout       time.Duration
	userAgent     string
	domainLimiter *domainLimiter
}

var _ FeedSource = (*Fetcher)(nil)

// NewFetcher creates a fetcher. Zero option fields take the package defaults.
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.PerDomain <= 0 {
		opts.PerDomain = MaxConcurrencyPerDomain
	}
	if opts.DomainDelay <= 0 {
		opts.DomainDelay = DelayBetweenDomainRequests
	}
	if opts.NoDomainDelay {
		opts.DomainDelay = 0
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Fetcher{
		client:        &http.Client{Transport: transport},
		timeout:       opts.Timeout,
		userAgent:     opts.UserAgent,
		domainLimiter: newDomainLimiter(opts.PerDomain, opts.DomainDelay),
	}
}

// ValidateURL checks that feedURL is an absolute http(s) URL.
func ValidateURL(feedURL string) (*url.URL, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return nil, &ArgumentError{URL: feedURL, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ArgumentError{URL: feedURL, Reason: "must use HTTP or HTTPS"}
	}
	if u.Host == "" {
		return nil, &ArgumentError{URL: feedURL, Reason: "missing host"}
	}
	return u, nil
}

// Fetch retrieves and parses the feed at feedURL. Every call goes to the network.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]model.RawItem, error) {
	start := time.Now()
	items, err := f.fetch(ctx, feedURL)
	fetchDuration.Observe(time.Since(start).Seconds())
	fetchTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		log.WithFields(log.Fields{
			"url":   feedURL,
			"error": err,
		}).Warn("Feed fetch failed")
	}
	return items, err
}

func (f *Fetcher) fetch(ctx context.Context, feedURL string) ([]model.RawItem, error) {
	u, err := ValidateURL(feedURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.domainLimiter.acquire(ctx, u.Host); err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	defer f.domainLimiter.release(u.Host)

	// gofeed parsers keep per-parse state, so each fetch gets its own.
	parser := gofeed.NewParser()
	parser.Client = f.client
	parser.UserAgent = f.userAgent

	parsed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, classify(ctx, feedURL, err)
	}

	items := make([]model.RawItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		if it == nil {
			continue
		}
		items = append(items, rawItem(it))
	}
	return items, nil
}

// classify maps gofeed and transport errors onto the package error types.
func classify(ctx context.Context, feedURL string, err error) error {
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		return &FetchError{URL: feedURL, StatusCode: httpErr.StatusCode, Err: err}
	}
	if ctx.Err() != nil {
		return &FetchError{URL: feedURL, Err: ctx.Err()}
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &FetchError{URL: feedURL, Err: err}
	}
	return &ParseError{URL: feedURL, Err: err}
}
