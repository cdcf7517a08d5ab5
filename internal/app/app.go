// Package app is the composition root: it loads configuration, opens the
// state store, assembles the pipeline, and exposes the operations the CLI
// commands invoke.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/api"
	"github.com/scoutlabs/scout/internal/classify"
	"github.com/scoutlabs/scout/internal/clock/system"
	"github.com/scoutlabs/scout/internal/config"
	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/guard"
	"github.com/scoutlabs/scout/internal/logging"
	"github.com/scoutlabs/scout/internal/normalize"
	"github.com/scoutlabs/scout/internal/resolve"
	"github.com/scoutlabs/scout/internal/run"
	"github.com/scoutlabs/scout/internal/sink"
	pubsubsink "github.com/scoutlabs/scout/internal/sink/pubsub"
	"github.com/scoutlabs/scout/internal/source"
	"github.com/scoutlabs/scout/internal/source/angellist"
	"github.com/scoutlabs/scout/internal/source/citydir"
	"github.com/scoutlabs/scout/internal/source/inc42"
	"github.com/scoutlabs/scout/internal/source/linkedin"
	"github.com/scoutlabs/scout/internal/source/mca"
	"github.com/scoutlabs/scout/internal/source/startupindia"
	"github.com/scoutlabs/scout/internal/source/tracxn"
	"github.com/scoutlabs/scout/internal/source/yc"
	"github.com/scoutlabs/scout/internal/state/memory"
	"github.com/scoutlabs/scout/internal/state/postgres"
)

// stateStore is the combined persistence surface both backends implement.
type stateStore interface {
	discovery.CheckpointStore
	discovery.IdentityIndex
	discovery.RecordStore
}

// App holds every long-lived dependency the commands share.
type App struct {
	Cfg     config.Config
	Logger  *zap.Logger
	History *api.RunHistory

	store  stateStore
	pg     *postgres.Store
	tables *normalize.Tables
	clock  discovery.Clock
}

// New builds the App from a config path. An empty db.dsn selects the
// in-memory store, which serves single-shot runs and tests.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, err
	}

	tables, err := normalize.LoadTables(cfg.Normalize.TablePaths...)
	if err != nil {
		return nil, fmt.Errorf("load lookup tables: %w", err)
	}

	a := &App{
		Cfg:     cfg,
		Logger:  logger,
		History: &api.RunHistory{},
		tables:  tables,
		clock:   system.New(),
	}
	if cfg.DB.DSN != "" {
		pg, err := postgres.New(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		a.store, a.pg = pg, pg
	} else {
		a.store = memory.New()
	}
	return a, nil
}

// Close releases store connections and flushes logs.
func (a *App) Close() {
	if a.pg != nil {
		a.pg.Close()
	}
	_ = a.Logger.Sync()
}

// DiscoverOptions carries the discover command's flags.
type DiscoverOptions struct {
	// Since overrides all persisted watermarks when non-zero.
	Since time.Time

	// Sources narrows the run to a subset of the enabled sources.
	Sources []string

	// Output overrides the configured sink destination: a file path, "-" for
	// stdout, or pubsub://project/topic.
	Output string

	// DryRun executes the full pipeline but emits nothing and leaves
	// checkpoints untouched.
	DryRun bool
}

// Discover executes one discovery run and records it in the run history.
func (a *App) Discover(ctx context.Context, opts DiscoverOptions) (discovery.RunSummary, error) {
	adapters, err := a.buildAdapters(opts.Sources)
	if err != nil {
		return discovery.RunSummary{}, err
	}

	out, closeSink, err := a.buildSink(ctx, opts)
	if err != nil {
		return discovery.RunSummary{}, err
	}
	defer closeSink()

	checkpoints := discovery.CheckpointStore(a.store)
	index := discovery.IdentityIndex(a.store)
	records := discovery.RecordStore(a.store)
	if opts.DryRun {
		// Dry runs read through to real state but write nowhere durable.
		scratch := newScratchState(a.store)
		checkpoints = readOnlyCheckpoints{a.store}
		index, records = scratch, scratch
	}

	g := guard.New(guard.Config{
		MaxAttempts:      a.Cfg.Guard.MaxAttempts,
		BackoffBase:      time.Duration(a.Cfg.Guard.BackoffInitialMs) * time.Millisecond,
		BackoffMax:       time.Duration(a.Cfg.Guard.BackoffMaxMs) * time.Millisecond,
		BreakerThreshold: a.Cfg.Guard.BreakerThreshold,
	}, a.Logger)

	orchestrator := run.New(
		run.Config{
			SourceTimeout: a.Cfg.SourceTimeout(),
			Since:         opts.Since,
		},
		a.buildSources(adapters, g),
		g,
		classify.New(),
		normalize.New(a.tables, a.clock),
		resolve.New(
			resolve.Config{SimilarityCutoff: a.Cfg.Resolver.SimilarityCutoff},
			index, records, a.Logger,
		),
		checkpoints,
		out,
		a.clock,
		a.Logger,
	)

	summary, err := orchestrator.Execute(ctx)
	if summary.RunID != "" {
		a.History.Record(summary)
	}
	return summary, err
}

// buildAdapters resolves which source names this run covers. Unknown names
// are a configuration error, not a partial failure.
func (a *App) buildAdapters(requested []string) ([]string, error) {
	enabled := make(map[string]bool, len(a.Cfg.Sources.Enabled))
	for _, name := range a.Cfg.Sources.Enabled {
		enabled[name] = true
	}
	if len(requested) == 0 {
		return a.Cfg.Sources.Enabled, nil
	}
	var out []string
	for _, name := range requested {
		name = strings.TrimSpace(name)
		if !enabled[name] {
			return nil, fmt.Errorf("unknown or disabled source %q", name)
		}
		out = append(out, name)
	}
	return out, nil
}

func (a *App) buildSources(names []string, caller source.Caller) []discovery.SourceAdapter {
	src := a.Cfg.Sources
	adapters := make([]discovery.SourceAdapter, 0, len(names))
	for _, name := range names {
		switch name {
		case "startupindia":
			adapters = append(adapters, startupindia.New(startupindia.Config{
				BaseURL:  src.StartupIndia.BaseURL,
				PageSize: src.StartupIndia.PageSize,
				MaxPages: src.StartupIndia.MaxPages,
				Timeout:  config.HTTPTimeout(src.StartupIndia.TimeoutSeconds),
				RPS:      src.StartupIndia.RPS,
				Burst:    src.StartupIndia.Burst,
				Clock:    a.clock,
			}, caller, a.Logger))
		case "mca":
			adapters = append(adapters, mca.New(mca.Config{
				BaseURL: src.MCA.BaseURL,
				MaxDays: src.MCA.MaxDays,
				Timeout: config.HTTPTimeout(src.MCA.TimeoutSeconds),
				RPS:     src.MCA.RPS,
				Burst:   src.MCA.Burst,
				Clock:   a.clock,
			}, caller, a.Logger))
		case "yc":
			adapters = append(adapters, yc.New(yc.Config{
				BaseURL:  src.YC.BaseURL,
				PageSize: src.YC.PageSize,
				MaxPages: src.YC.MaxPages,
				Timeout:  config.HTTPTimeout(src.YC.TimeoutSeconds),
				RPS:      src.YC.RPS,
				Burst:    src.YC.Burst,
				Clock:    a.clock,
			}, caller, a.Logger))
		case "tracxn":
			adapters = append(adapters, tracxn.New(tracxn.Config{
				BaseURL: src.Tracxn.BaseURL,
				Feeds:   src.Tracxn.Feeds,
				Token:   src.Tracxn.Token,
				Timeout: config.HTTPTimeout(src.Tracxn.TimeoutSeconds),
				RPS:     src.Tracxn.RPS,
				Burst:   src.Tracxn.Burst,
				Clock:   a.clock,
			}, caller, a.Logger))
		case "inc42":
			adapters = append(adapters, inc42.New(inc42.Config{
				Endpoints: src.Inc42.Endpoints,
				Timeout:   config.HTTPTimeout(src.Inc42.TimeoutSeconds),
				RPS:       src.Inc42.RPS,
				Burst:     src.Inc42.Burst,
				Clock:     a.clock,
			}, caller, a.Logger))
		case "citydir":
			adapters = append(adapters, citydir.New(citydir.Config{
				Cities:  src.CityDir.Cities,
				Timeout: config.HTTPTimeout(src.CityDir.TimeoutSeconds),
				RPS:     src.CityDir.RPS,
				Burst:   src.CityDir.Burst,
				Clock:   a.clock,
			}, caller, a.Logger))
		case "angellist":
			adapters = append(adapters, angellist.New(angellist.Config{
				GraphQLURL: src.AngelList.GraphQLURL,
				Location:   src.AngelList.Location,
				Stages:     src.AngelList.Stages,
				PageSize:   src.AngelList.PageSize,
				MaxPages:   src.AngelList.MaxPages,
				Timeout:    config.HTTPTimeout(src.AngelList.TimeoutSeconds),
				RPS:        src.AngelList.RPS,
				Burst:      src.AngelList.Burst,
				Clock:      a.clock,
			}, caller, a.Logger))
		case "linkedin":
			adapters = append(adapters, linkedin.New(linkedin.Config{
				BaseURL:    src.LinkedIn.BaseURL,
				Keywords:   src.LinkedIn.Keywords,
				LiAt:       src.LinkedIn.LiAt,
				JSessionID: src.LinkedIn.JSessionID,
				PageSize:   src.LinkedIn.PageSize,
				MaxPages:   src.LinkedIn.MaxPages,
				Timeout:    config.HTTPTimeout(src.LinkedIn.TimeoutSeconds),
				RPS:        src.LinkedIn.RPS,
				Burst:      src.LinkedIn.Burst,
				Clock:      a.clock,
			}, caller, a.Logger))
		}
	}
	return adapters
}

// buildSink resolves the output destination. Dry runs capture in memory so
// the pipeline still exercises the emit path.
func (a *App) buildSink(ctx context.Context, opts DiscoverOptions) (discovery.Sink, func(), error) {
	if opts.DryRun {
		return sink.NewCapture(), func() {}, nil
	}

	dest := opts.Output
	if dest == "" {
		dest = a.Cfg.Output.Path
	}
	switch {
	case dest == "-":
		s := sink.NewWriter(os.Stdout)
		return s, func() { _ = s.Close() }, nil
	case strings.HasPrefix(dest, "pubsub://"):
		project, topic, err := parsePubSubDest(dest, a.Cfg.PubSub)
		if err != nil {
			return nil, nil, err
		}
		s, err := pubsubsink.New(ctx, project, topic)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s, err := sink.NewFile(dest)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
}

// parsePubSubDest accepts pubsub://project/topic, with either part
// defaulting to the configured values.
func parsePubSubDest(dest string, cfg config.PubSubConfig) (string, string, error) {
	rest := strings.TrimPrefix(dest, "pubsub://")
	project, topic := cfg.ProjectID, cfg.TopicName
	if rest != "" {
		parts := strings.SplitN(rest, "/", 2)
		if parts[0] != "" {
			project = parts[0]
		}
		if len(parts) == 2 && parts[1] != "" {
			topic = parts[1]
		}
	}
	if project == "" || topic == "" {
		return "", "", fmt.Errorf("pubsub output needs a project and topic, got %q", dest)
	}
	return project, topic, nil
}
