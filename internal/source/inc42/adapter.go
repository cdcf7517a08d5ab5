// Package inc42 scrapes startup listing pages from Inc42. The site mixes
// company cards with editorial content, so this adapter produces most of the
// pipeline's noise items; the classifier sorts them out downstream.
package inc42

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/clock/system"
	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/normalize"
	"github.com/scoutlabs/scout/internal/source"
)

const sourceID = "inc42"

// titlePatterns extract a company name from headline-shaped card titles
// ("How Acme Is Changing X", "Acme's New Platform").
var titlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^How\s+(.+?)\s+(?:Is|Has|Uses|Helps)\s+`),
	regexp.MustCompile(`(?i)^Why\s+(.+?)\s+`),
	regexp.MustCompile(`^(.+?)(?:’s|'s)\s+`),
}

// Config holds adapter settings. Clock defaults to the system clock.
type Config struct {
	Endpoints []string
	Timeout   time.Duration
	UserAgent string
	RPS       float64
	Burst     int
	Clock     discovery.Clock
}

// Adapter implements discovery.SourceAdapter for Inc42 listings.
type Adapter struct {
	cfg    Config
	caller source.Caller
	logger *zap.Logger
	base   *colly.Collector
}

// New constructs the adapter with a base collector the per-page scrapes
// clone, the same pattern the page fetcher uses elsewhere.
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

// Fetch scrapes each configured listing endpoint. The cursor records the
// first unfinished endpoint so a failed run resumes there.
func (a *Adapter) Fetch(ctx context.Context, wm discovery.Watermark, emit discovery.EmitFunc) (discovery.Watermark, error) {
	start := 0
	for i, ep := range a.cfg.Endpoints {
		if ep == wm.Cursor {
			start = i
			break
		}
	}

	for i := start; i < len(a.cfg.Endpoints); i++ {
		endpoint := a.cfg.Endpoints[i]
		var items []discovery.RawEntity
		err := a.caller.Do(ctx, sourceID, func(ctx context.Context) error {
			return a.scrape(ctx, endpoint, &items)
		})
		if err != nil {
			return discovery.Watermark{Since: wm.Since, Cursor: endpoint}, err
		}
		for _, raw := range items {
			if err := emit(raw); err != nil {
				return wm, err
			}
		}
	}
	return discovery.Watermark{Since: a.cfg.Clock.Now().UTC()}, nil
}

func (a *Adapter) scrape(ctx context.Context, endpoint string, out *[]discovery.RawEntity) error {
	collector := a.base.Clone()
	now := a.cfg.Clock.Now().UTC()
	var fetchErr error

	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = mapHTTPError(endpoint, r, err)
	})

	collector.OnHTML("article", func(e *colly.HTMLElement) {
		title := normalize.CleanText(firstText(e, "h2", "h3", ".entry-title"))
		if title == "" {
			return
		}
		link := e.ChildAttr("a[href]", "href")
		if link == "" {
			link = endpoint
		}
		name := title
		if extracted := companyFromTitle(title); extracted != "" {
			name = extracted
		}
		*out = append(*out, discovery.RawEntity{
			SourceID:    sourceID,
			SourceURL:   e.Request.AbsoluteURL(link),
			FetchedAt:   now,
			Name:        name,
			Description: normalize.CleanText(firstText(e, ".entry-summary", "p")),
			Location:    "India",
			Fields:      map[string]string{"title": title},
		})
	})

	if err := collector.Visit(endpoint); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fetchErr != nil {
			return fetchErr
		}
		return discovery.Unavailable(fmt.Errorf("visit %s: %w", endpoint, err))
	}
	return fetchErr
}

func mapHTTPError(endpoint string, r *colly.Response, err error) error {
	if r != nil {
		switch {
		case r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s returned %d", discovery.ErrAuthExpired, endpoint, r.StatusCode)
		case r.StatusCode >= 400:
			return discovery.Unavailable(fmt.Errorf("%s returned %d", endpoint, r.StatusCode))
		}
	}
	return discovery.Unavailable(fmt.Errorf("fetch %s: %w", endpoint, err))
}

func firstText(e *colly.HTMLElement, selectors ...string) string {
	for _, sel := range selectors {
		if text := e.ChildText(sel); text != "" {
			return text
		}
	}
	return ""
}

func companyFromTitle(title string) string {
	for _, p := range titlePatterns {
		m := p.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if name != "" && len(strings.Fields(name)) <= 4 {
			return name
		}
	}
	return ""
}
