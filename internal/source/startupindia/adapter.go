// Package startupindia fetches DPIIT-recognised startups from the Startup
// India portal's JSON search API.
package startupindia

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/clock/system"
	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/normalize"
	"github.com/scoutlabs/scout/internal/source"
)

const sourceID = "startupindia"

// Config holds adapter settings supplied by the configuration surface.
// Clock defaults to the system clock.
type Config struct {
	BaseURL   string
	PageSize  int
	MaxPages  int
	Timeout   time.Duration
	UserAgent string
	RPS       float64
	Burst     int
	Clock     discovery.Clock
}

// Adapter implements discovery.SourceAdapter for the Startup India portal.
type Adapter struct {
	cfg    Config
	client *source.Client
	caller source.Caller
	logger *zap.Logger
}

// New constructs the adapter.
func New(cfg Config, caller source.Caller, logger *zap.Logger) *Adapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 25
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

type searchResponse struct {
	Results []searchItem `json:"results"`
}

type searchItem struct {
	Name        string `json:"name"`
	StartupName string `json:"startupName"`
	DPIITNumber string `json:"dpiitNumber"`
	Website     string `json:"website"`
	Description string `json:"description"`
	About       string `json:"about"`
	Industry    string `json:"industry"`
	Sector      string `json:"sector"`
	City        string `json:"city"`
	State       string `json:"state"`
	DetailURL   string `json:"url"`
}

// Fetch pages through the recognised-startup search. The portal cannot
// filter by recognition date, so each run re-walks the listing from its
// cursor and relies on downstream dedup for idempotence.
func (a *Adapter) Fetch(ctx context.Context, wm discovery.Watermark, emit discovery.EmitFunc) (discovery.Watermark, error) {
	page := 0
	if wm.Cursor != "" {
		if p, err := strconv.Atoi(wm.Cursor); err == nil {
			page = p
		}
	}

	for fetched := 0; fetched < a.cfg.MaxPages; fetched++ {
		var resp searchResponse
		pageURL := a.pageURL(page)
		err := a.caller.Do(ctx, sourceID, func(ctx context.Context) error {
			return a.client.GetJSON(ctx, pageURL, map[string]string{
				"X-Requested-With": "XMLHttpRequest",
			}, &resp)
		})
		if err != nil {
			// Resume from this page next run.
			return discovery.Watermark{Since: wm.Since, Cursor: strconv.Itoa(page)}, err
		}
		if len(resp.Results) == 0 {
			break
		}

		now := a.cfg.Clock.Now().UTC()
		for _, item := range resp.Results {
			raw, perr := a.toRaw(item, pageURL, now)
			if perr != nil {
				a.logger.Warn("skipping malformed item", zap.Error(perr))
				continue
			}
			if err := emit(raw); err != nil {
				return wm, err
			}
		}
		page++
	}

	// Listing fully drained; the next run starts over from the front.
	return discovery.Watermark{Since: a.cfg.Clock.Now().UTC()}, nil
}

func (a *Adapter) pageURL(page int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("results", strconv.Itoa(a.cfg.PageSize))
	q.Set("dpiitRecognised", "true")
	return a.cfg.BaseURL + "?" + q.Encode()
}

func (a *Adapter) toRaw(item searchItem, pageURL string, fetchedAt time.Time) (discovery.RawEntity, error) {
	name := item.Name
	if name == "" {
		name = item.StartupName
	}
	if name == "" {
		return discovery.RawEntity{}, &discovery.ParseError{
			SourceID: sourceID,
			Item:     item.DetailURL,
			Err:      fmt.Errorf("item missing name"),
		}
	}
	industry := item.Industry
	if industry == "" {
		industry = item.Sector
	}
	sourceURL := item.DetailURL
	if sourceURL == "" {
		sourceURL = pageURL
	}
	return discovery.RawEntity{
		SourceID:       sourceID,
		SourceURL:      sourceURL,
		FetchedAt:      fetchedAt,
		Name:           normalize.CleanText(name),
		Website:        item.Website,
		Description:    firstNonEmpty(item.Description, item.About),
		Location:       joinLocation(item.City, item.State),
		Industry:       industry,
		RegistrationID: item.DPIITNumber,
		RegistryRecord: true,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinLocation(city, state string) string {
	switch {
	case city != "" && state != "":
		return city + ", " + state
	case city != "":
		return city
	default:
		return state
	}
}
