// Package yc fetches companies from the Y Combinator public companies API,
// filtered to a configured country.
package yc

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/clock/system"
	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/source"
)

const sourceID = "yc"

// Config holds adapter settings. Clock defaults to the system clock.
type Config struct {
	BaseURL   string
	Country   string
	PageSize  int
	MaxPages  int
	Timeout   time.Duration
	UserAgent string
	RPS       float64
	Burst     int
	Clock     discovery.Clock
}

// Adapter implements discovery.SourceAdapter for the YC directory.
type Adapter struct {
	cfg    Config
	client *source.Client
	caller source.Caller
	logger *zap.Logger
}

// New constructs the adapter.
func New(cfg Config, caller source.Caller, logger *zap.Logger) *Adapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
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

type companiesResponse struct {
	Companies []company `json:"companies"`
}

type company struct {
	Name        string            `json:"name"`
	Website     string            `json:"website"`
	URL         string            `json:"url"`
	Description string            `json:"description"`
	OneLiner    string            `json:"one_liner"`
	Batch       string            `json:"batch"`
	Industries  []string          `json:"industries"`
	Locations   []companyLocation `json:"locations"`
}

type companyLocation struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Fetch pages through the API by offset, resuming from the cursor when a
// previous run stopped mid-listing.
func (a *Adapter) Fetch(ctx context.Context, wm discovery.Watermark, emit discovery.EmitFunc) (discovery.Watermark, error) {
	offset := 0
	if wm.Cursor != "" {
		if o, err := strconv.Atoi(wm.Cursor); err == nil {
			offset = o
		}
	}

	for page := 0; page < a.cfg.MaxPages; page++ {
		var resp companiesResponse
		pageURL := a.pageURL(offset)
		err := a.caller.Do(ctx, sourceID, func(ctx context.Context) error {
			return a.client.GetJSON(ctx, pageURL, nil, &resp)
		})
		if err != nil {
			return discovery.Watermark{Since: wm.Since, Cursor: strconv.Itoa(offset)}, err
		}
		if len(resp.Companies) == 0 {
			break
		}

		now := a.cfg.Clock.Now().UTC()
		for _, c := range resp.Companies {
			raw, perr := a.toRaw(c, pageURL, now)
			if perr != nil {
				a.logger.Warn("skipping malformed company", zap.Error(perr))
				continue
			}
			if raw.Name == "" {
				// Outside the configured country filter.
				continue
			}
			if err := emit(raw); err != nil {
				return wm, err
			}
		}
		offset += len(resp.Companies)
		if len(resp.Companies) < a.cfg.PageSize {
			break
		}
	}
	return discovery.Watermark{Since: a.cfg.Clock.Now().UTC()}, nil
}

func (a *Adapter) pageURL(offset int) string {
	q := url.Values{}
	q.Set("location", a.cfg.Country)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(a.cfg.PageSize))
	return a.cfg.BaseURL + "?" + q.Encode()
}

func (a *Adapter) toRaw(c company, pageURL string, fetchedAt time.Time) (discovery.RawEntity, error) {
	if c.Name == "" {
		return discovery.RawEntity{}, &discovery.ParseError{
			SourceID: sourceID,
			Item:     c.URL,
			Err:      fmt.Errorf("company missing name"),
		}
	}
	if !a.inCountry(c.Locations) {
		return discovery.RawEntity{Name: ""}, nil
	}

	website := c.Website
	if website == "" {
		website = c.URL
	}
	stage := "series_a"
	if strings.HasPrefix(c.Batch, "S") {
		stage = "seed"
	}
	return discovery.RawEntity{
		SourceID:     sourceID,
		SourceURL:    pageURL,
		FetchedAt:    fetchedAt,
		Name:         c.Name,
		Website:      website,
		Description:  firstNonEmpty(c.Description, c.OneLiner),
		Location:     joinLocations(c.Locations),
		Industry:     strings.Join(c.Industries, ", "),
		FundingStage: stage,
		Fields:       map[string]string{"batch": c.Batch},
	}, nil
}

func (a *Adapter) inCountry(locations []companyLocation) bool {
	target := strings.ToLower(a.cfg.Country)
	for _, loc := range locations {
		if strings.Contains(strings.ToLower(loc.Country), target) ||
			strings.Contains(strings.ToLower(loc.City), target) {
			return true
		}
	}
	return false
}

func joinLocations(locations []companyLocation) string {
	var parts []string
	for _, loc := range locations {
		if loc.City != "" {
			parts = append(parts, loc.City)
		}
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
