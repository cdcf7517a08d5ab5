// Package citydir scrapes startup listings from tier-2 city ecosystem
// directories. Each configured city maps to one or more directory sites;
// markup varies wildly between them, so extraction is deliberately loose and
// the classifier does the filtering.
package citydir

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/clock/system"
	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/normalize"
	"github.com/scoutlabs/scout/internal/source"
)

const sourceID = "citydir"

// cardSelectors cover the listing markup seen across the directories, from
// purpose-built startup cards down to bare headings on older sites.
var cardSelectors = []string{
	".startup-card", ".company-card", ".member-card", ".startup-item",
	".portfolio-item", "article.startup",
}

// Config holds adapter settings. Cities maps a city name to the directory
// URLs that cover it. Clock defaults to the system clock.
type Config struct {
	Cities    map[string][]string
	Timeout   time.Duration
	UserAgent string
	RPS       float64
	Burst     int
	Clock     discovery.Clock
}

// Adapter implements discovery.SourceAdapter for city directories.
type Adapter struct {
	cfg    Config
	caller source.Caller
	logger *zap.Logger
	base   *colly.Collector
}

// New constructs the adapter.
func New(cfg Config, caller source.Caller, logger *zap.Logger) *Adapter {
	if cfg.UserAgent == "" {
		cfg.UserAgent = source.DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	base := colly.NewCollector(colly.Async(false))
	base.UserAgent = cfg.UserAgent
	base.SetRequestTimeout(cfg.Timeout)
	return &Adapter{
		cfg:    cfg,
		caller: caller,
		logger: logger.With(zap.String("source_id", sourceID)),
		base:   base,
	}
}

// SourceID implements discovery.SourceAdapter.
func (a *Adapter) SourceID() string { return sourceID }

// RateLimit implements discovery.SourceAdapter.
func (a *Adapter) RateLimit() discovery.Rate {
	return discovery.Rate{RequestsPerSecond: a.cfg.RPS, Burst: a.cfg.Burst}
}

// Fetch scrapes every directory for every configured city. Cities walk in
// sorted order so the resume cursor, "city|url", lands on a stable position.
func (a *Adapter) Fetch(ctx context.Context, wm discovery.Watermark, emit discovery.EmitFunc) (discovery.Watermark, error) {
	cities := make([]string, 0, len(a.cfg.Cities))
	for city := range a.cfg.Cities {
		cities = append(cities, city)
	}
	sort.Strings(cities)

	resumed := wm.Cursor == ""
	for _, city := range cities {
		for _, dirURL := range a.cfg.Cities[city] {
			cursor := city + "|" + dirURL
			if !resumed {
				if cursor == wm.Cursor {
					resumed = true
				} else {
					continue
				}
			}

			var items []discovery.RawEntity
			err := a.caller.Do(ctx, sourceID, func(ctx context.Context) error {
				return a.scrape(ctx, city, dirURL, &items)
			})
			if err != nil {
				return discovery.Watermark{Since: wm.Since, Cursor: cursor}, err
			}
			for _, raw := range items {
				if err := emit(raw); err != nil {
					return wm, err
				}
			}
		}
	}
	return discovery.Watermark{Since: a.cfg.Clock.Now().UTC()}, nil
}

func (a *Adapter) scrape(ctx context.Context, city, dirURL string, out *[]discovery.RawEntity) error {
	collector := a.base.Clone()
	now := a.cfg.Clock.Now().UTC()
	seen := make(map[string]bool)
	var fetchErr error

	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = mapHTTPError(dirURL, r, err)
	})

	add := func(e *colly.HTMLElement, name, website, desc string) {
		name = normalize.CleanText(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		// AbsoluteURL appends a trailing slash to bare hosts; strip it so the
		// website matches the normalizer's canonical form.
		*out = append(*out, discovery.RawEntity{
			SourceID:    sourceID,
			SourceURL:   dirURL,
			FetchedAt:   now,
			Name:        name,
			Website:     strings.TrimRight(e.Request.AbsoluteURL(website), "/"),
			Description: normalize.CleanText(desc),
			Location:    city,
			Fields:      map[string]string{"directory": dirURL},
		})
	}

	for _, sel := range cardSelectors {
		collector.OnHTML(sel, func(e *colly.HTMLElement) {
			name := firstText(e, "h2", "h3", "h4", ".name", ".title")
			add(e, name, e.ChildAttr("a[href]", "href"), firstText(e, "p", ".description"))
		})
	}
	// Older directories are plain heading lists with no card markup.
	collector.OnHTML("ul.startups li, ul.companies li", func(e *colly.HTMLElement) {
		add(e, e.ChildText("a"), e.ChildAttr("a[href]", "href"), "")
	})

	if err := collector.Visit(dirURL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fetchErr != nil {
			return fetchErr
		}
		return discovery.Unavailable(fmt.Errorf("visit %s: %w", dirURL, err))
	}
	return fetchErr
}

func mapHTTPError(dirURL string, r *colly.Response, err error) error {
	if r != nil {
		switch {
		case r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s returned %d", discovery.ErrAuthExpired, dirURL, r.StatusCode)
		case r.StatusCode >= 400:
			return discovery.Unavailable(fmt.Errorf("%s returned %d", dirURL, r.StatusCode))
		}
	}
	return discovery.Unavailable(fmt.Errorf("fetch %s: %w", dirURL, err))
}

func firstText(e *colly.HTMLElement, selectors ...string) string {
	for _, sel := range selectors {
		if text := e.ChildText(sel); text != "" {
			return text
		}
	}
	return ""
}
