// Package mca fetches newly incorporated companies from the Ministry of
// Corporate Affairs daily filing search. The CIN it carries is the
// authoritative registration identifier for the whole pipeline.
package mca

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/clock/system"
	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/normalize"
	"github.com/scoutlabs/scout/internal/source"
)

const (
	sourceID   = "mca"
	dateLayout = "02-01-2006"
)

// startupIndicators narrow daily filings to names that look like startups,
// matching the filing filter the discovery feed has always applied.
var startupIndicators = []string{
	"tech", "solutions", "innovations", "digital", "data",
	"software", "systems", "services", "labs", "ventures",
	"private limited", "pvt ltd",
}

// Config holds adapter settings. Clock defaults to the system clock.
type Config struct {
	BaseURL   string
	MaxDays   int
	Timeout   time.Duration
	UserAgent string
	RPS       float64
	Burst     int
	Clock     discovery.Clock
}

// Adapter implements discovery.SourceAdapter for MCA filings.
type Adapter struct {
	cfg    Config
	client *source.Client
	caller source.Caller
	logger *zap.Logger
}

// New constructs the adapter.
func New(cfg Config, caller source.Caller, logger *zap.Logger) *Adapter {
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 30
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

type filingResponse struct {
	Companies []filingItem `json:"companies"`
	Data      []filingItem `json:"data"`
}

type filingItem struct {
	CompanyName string `json:"companyName"`
	CIN         string `json:"cin"`
	State       string `json:"state"`
	Category    string `json:"category"`
}

// Fetch walks one search request per incorporation date, from the watermark
// forward to today. The watermark advances to the last fully processed day,
// so an interrupted run resumes exactly where it stopped.
func (a *Adapter) Fetch(ctx context.Context, wm discovery.Watermark, emit discovery.EmitFunc) (discovery.Watermark, error) {
	today := a.cfg.Clock.Now().UTC().Truncate(24 * time.Hour)
	start := wm.Since.UTC().Truncate(24 * time.Hour)
	floor := today.AddDate(0, 0, -a.cfg.MaxDays)
	if start.Before(floor) {
		start = floor
	}

	processed := wm
	for day := start; !day.After(today); day = day.AddDate(0, 0, 1) {
		var resp filingResponse
		dayURL := a.dayURL(day)
		err := a.caller.Do(ctx, sourceID, func(ctx context.Context) error {
			return a.client.GetJSON(ctx, dayURL, nil, &resp)
		})
		if err != nil {
			return processed, err
		}

		items := resp.Companies
		if len(items) == 0 {
			items = resp.Data
		}
		now := a.cfg.Clock.Now().UTC()
		for _, item := range items {
			raw, perr := a.toRaw(item, dayURL, day, now)
			if perr != nil {
				a.logger.Warn("skipping malformed filing", zap.Error(perr))
				continue
			}
			if raw.Name == "" {
				// Filing filtered out as a non-startup incorporation.
				continue
			}
			if err := emit(raw); err != nil {
				return processed, err
			}
		}
		processed = discovery.Watermark{Since: day}
	}
	return processed, nil
}

func (a *Adapter) dayURL(day time.Time) string {
	q := url.Values{}
	q.Set("type", "company")
	q.Set("date", day.Format(dateLayout))
	q.Set("category", "company limited by shares")
	q.Set("subcategory", "non-government")
	return a.cfg.BaseURL + "?" + q.Encode()
}

func (a *Adapter) toRaw(item filingItem, dayURL string, day time.Time, fetchedAt time.Time) (discovery.RawEntity, error) {
	if item.CIN == "" {
		return discovery.RawEntity{}, &discovery.ParseError{
			SourceID: sourceID,
			Item:     item.CompanyName,
			Err:      fmt.Errorf("filing missing CIN"),
		}
	}
	name := normalize.CleanText(item.CompanyName)
	if !isStartupName(name) {
		return discovery.RawEntity{Name: ""}, nil
	}
	return discovery.RawEntity{
		SourceID:       sourceID,
		SourceURL:      dayURL,
		FetchedAt:      fetchedAt,
		Name:           name,
		Location:       item.State,
		Description:    fmt.Sprintf("CIN: %s, Registered: %s", item.CIN, day.Format(dateLayout)),
		RegistrationID: item.CIN,
		RegistryRecord: true,
	}, nil
}

func isStartupName(name string) bool {
	lower := strings.ToLower(name)
	for _, ind := range startupIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
