// Package tracxn fetches emerging-startup feeds from the Tracxn discover
// API. Access requires a bearer token; an invalid token fails this source's
// run without touching the others.
package tracxn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/clock/system"
	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/source"
)

const sourceID = "tracxn"

// Config holds adapter settings. Token comes from the environment or config
// file, never hard-coded.
type Config struct {
	BaseURL   string
	Feeds     []string
	Token     string
	Country   string
	Timeout   time.Duration
	UserAgent string
	RPS       float64
	Burst     int
	Clock     discovery.Clock
}

// Adapter implements discovery.SourceAdapter for Tracxn feeds.
type Adapter struct {
	cfg    Config
	client *source.Client
	caller source.Caller
	logger *zap.Logger
}

// New constructs the adapter.
func New(cfg Config, caller source.Caller, logger *zap.Logger) *Adapter {
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = []string{"emerging-startups", "recent-funding"}
	}
	if cfg.Country == "" {
		cfg.Country = "india"
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	return &Adapter{
		cfg:    cfg,
		client: source.NewClient(cfg.Timeout, cfg.UserAgent),
		caller: caller,
		logger: logger.With(zap.String("source_id", sourceID)),
	}
}

// SourceID implements discovery.SourceAdapter.
func (a *Adapter) SourceID() string { return sourceID }

// RateLimit implements discovery.SourceAdapter.
func (a *Adapter) RateLimit() discovery.Rate {
	return discovery.Rate{RequestsPerSecond: a.cfg.RPS, Burst: a.cfg.Burst}
}

type feedResponse struct {
	Data []feedItem `json:"data"`
}

type feedItem struct {
	Company feedCompany `json:"company"`
}

type feedCompany struct {
	Name        string       `json:"name"`
	Domain      string       `json:"domain"`
	Description string       `json:"description"`
	Stage       string       `json:"stage"`
	Sectors     []string     `json:"sectors"`
	Location    feedLocation `json:"location"`
}

type feedLocation struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Fetch drains each configured feed in order. Feeds are small snapshots, so
// the cursor records the first unfinished feed and a failed run resumes
// there.
func (a *Adapter) Fetch(ctx context.Context, wm discovery.Watermark, emit discovery.EmitFunc) (discovery.Watermark, error) {
	if a.cfg.Token == "" {
		return wm, fmt.Errorf("%w: no tracxn token configured", discovery.ErrAuthExpired)
	}

	start := 0
	for i, feed := range a.cfg.Feeds {
		if feed == wm.Cursor {
			start = i
			break
		}
	}

	headers := map[string]string{"Authorization": "Bearer " + a.cfg.Token}
	for i := start; i < len(a.cfg.Feeds); i++ {
		feed := a.cfg.Feeds[i]
		feedURL := strings.TrimRight(a.cfg.BaseURL, "/") + "/" + feed
		var resp feedResponse
		err := a.caller.Do(ctx, sourceID, func(ctx context.Context) error {
			return a.client.GetJSON(ctx, feedURL, headers, &resp)
		})
		if err != nil {
			return discovery.Watermark{Since: wm.Since, Cursor: feed}, err
		}

		now := a.cfg.Clock.Now().UTC()
		for _, item := range resp.Data {
			raw, perr := a.toRaw(item, feedURL, now)
			if perr != nil {
				a.logger.Warn("skipping malformed feed item", zap.Error(perr))
				continue
			}
			if raw.Name == "" {
				continue
			}
			if err := emit(raw); err != nil {
				return wm, err
			}
		}
	}
	return discovery.Watermark{Since: a.cfg.Clock.Now().UTC()}, nil
}

func (a *Adapter) toRaw(item feedItem, feedURL string, fetchedAt time.Time) (discovery.RawEntity, error) {
	c := item.Company
	if c.Name == "" {
		return discovery.RawEntity{}, &discovery.ParseError{
			SourceID: sourceID,
			Item:     c.Domain,
			Err:      fmt.Errorf("feed item missing company name"),
		}
	}
	if !strings.EqualFold(c.Location.Country, a.cfg.Country) {
		return discovery.RawEntity{Name: ""}, nil
	}
	return discovery.RawEntity{
		SourceID:     sourceID,
		SourceURL:    feedURL,
		FetchedAt:    fetchedAt,
		Name:         c.Name,
		Website:      c.Domain,
		Description:  c.Description,
		Location:     c.Location.City,
		Industry:     strings.Join(c.Sectors, ", "),
		FundingStage: c.Stage,
	}, nil
}
