// Package run drives one discovery pass: fan out over the source adapters,
// classify and normalize their items, resolve identities serially, and hand
// the resolved records to the output sink.
package run

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scoutlabs/scout/internal/classify"
	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/guard"
	"github.com/scoutlabs/scout/internal/id/uuid"
	"github.com/scoutlabs/scout/internal/normalize"
	"github.com/scoutlabs/scout/internal/resolve"
	"github.com/scoutlabs/scout/internal/telemetry"
)

// Config holds orchestrator tuning.
type Config struct {
	// SourceTimeout bounds each source's fetch. Zero means no per-source
	// deadline beyond the run context.
	SourceTimeout time.Duration

	// Since overrides the persisted watermark floor for every source when
	// non-zero (the --since flag).
	Since time.Time
}

// Orchestrator owns a discovery run end to end. Sources fetch concurrently;
// resolution is serialized through a single consumer so the identity index
// never races.
type Orchestrator struct {
	cfg         Config
	sources     []discovery.SourceAdapter
	guard       *guard.Guard
	classifier  *classify.Classifier
	normalizer  *normalize.Normalizer
	resolver    *resolve.Resolver
	checkpoints discovery.CheckpointStore
	sink        discovery.Sink
	ids         *uuid.Generator
	clock       discovery.Clock
	logger      *zap.Logger
}

// New constructs an Orchestrator.
func New(
	cfg Config,
	sources []discovery.SourceAdapter,
	g *guard.Guard,
	classifier *classify.Classifier,
	normalizer *normalize.Normalizer,
	resolver *resolve.Resolver,
	checkpoints discovery.CheckpointStore,
	sink discovery.Sink,
	clock discovery.Clock,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		sources:     sources,
		guard:       g,
		classifier:  classifier,
		normalizer:  normalizer,
		resolver:    resolver,
		checkpoints: checkpoints,
		sink:        sink,
		ids:         uuid.NewGenerator(),
		clock:       clock,
		logger:      logger,
	}
}

// candidate is one admitted item on its way to the resolver.
type candidate struct {
	record        discovery.CanonicalRecord
	authoritative bool
}

// sourceResult is what one source goroutine hands back.
type sourceResult struct {
	report    discovery.SourceReport
	watermark discovery.Watermark
	advanced  bool
}

// Execute performs one full discovery run and always returns a summary, even
// on fatal errors; the summary's status carries the exit code.
func (o *Orchestrator) Execute(ctx context.Context) (discovery.RunSummary, error) {
	runID, err := o.ids.NewID()
	if err != nil {
		return discovery.RunSummary{}, discovery.Fatal(err)
	}
	summary := discovery.RunSummary{
		RunID:     runID,
		StartedAt: o.clock.Now(),
	}
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("discovery run starting", zap.Int("sources", len(o.sources)))

	checkpoints, err := o.checkpoints.Load(ctx)
	if err != nil {
		return o.finish(summary, discovery.Fatal(fmt.Errorf("load checkpoints: %w", err)))
	}

	for _, src := range o.sources {
		o.guard.Register(src.SourceID(), src.RateLimit())
	}

	candidates := make(chan candidate, 64)
	results := make(map[string]sourceResult, len(o.sources))
	var resultsMu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for _, src := range o.sources {
		group.Go(func() error {
			res := o.runSource(groupCtx, src, checkpoints[src.SourceID()], candidates)
			resultsMu.Lock()
			results[src.SourceID()] = res
			resultsMu.Unlock()
			// Per-source failures are contained; only a cancelled run context
			// stops the group.
			return nil
		})
	}
	go func() {
		_ = group.Wait() // goroutines contain their own failures
		close(candidates)
	}()

	resolved, fatalErr := o.consume(ctx, candidates, &summary)

	// Emit before advancing checkpoints, so records are durable first; a
	// crash in between duplicates output, which entity keys absorb. On a
	// fatal error this flushes whatever resolved before the abort.
	if len(resolved) > 0 {
		if err := o.sink.Emit(ctx, resolved); err != nil {
			if fatalErr == nil {
				fatalErr = discovery.Fatal(fmt.Errorf("emit records: %w", err))
			}
		} else {
			summary.Emitted = len(resolved)
		}
	}

	for _, src := range o.sources {
		res := results[src.SourceID()]
		summary.Sources = append(summary.Sources, res.report)
		if res.advanced && fatalErr == nil {
			if err := o.checkpoints.Save(ctx, src.SourceID(), res.watermark); err != nil {
				fatalErr = discovery.Fatal(fmt.Errorf("save checkpoint %s: %w", src.SourceID(), err))
			}
		}
	}
	sort.Slice(summary.Sources, func(i, j int) bool {
		return summary.Sources[i].SourceID < summary.Sources[j].SourceID
	})

	return o.finish(summary, fatalErr)
}

// runSource drives one adapter: fetch under the per-source deadline, classify
// and normalize each item, and push admitted candidates to the resolver.
func (o *Orchestrator) runSource(ctx context.Context, src discovery.SourceAdapter, wm discovery.Watermark, out chan<- candidate) sourceResult {
	sourceID := src.SourceID()
	logger := o.logger.With(zap.String("source_id", sourceID))
	report := discovery.SourceReport{SourceID: sourceID, Status: discovery.SourceOK}

	if o.cfg.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.SourceTimeout)
		defer cancel()
	}
	if !o.cfg.Since.IsZero() {
		wm = discovery.Watermark{Since: o.cfg.Since}
	}

	emit := func(raw discovery.RawEntity) error {
		report.Fetched++
		telemetry.CountFetched(sourceID, 1)

		verdict := o.classifier.Classify(raw)
		if verdict.Kind == classify.Noise {
			report.NoiseDropped++
			telemetry.CountNoise(sourceID, verdict.Reason)
			logger.Debug("dropped noise item",
				zap.String("name", raw.Name),
				zap.String("reason", verdict.Reason),
			)
			return nil
		}

		report.Admitted++
		telemetry.CountAdmitted(sourceID)
		select {
		case out <- candidate{record: o.normalizer.Normalize(raw), authoritative: raw.RegistryRecord}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	next, err := src.Fetch(ctx, wm, emit)
	if err != nil {
		report.Status, report.Err = sourceFailureStatus(err), err.Error()
		telemetry.CountSourceFailure(sourceID, string(report.Status))
		logger.Warn("source fetch failed",
			zap.String("status", string(report.Status)),
			zap.Error(err),
		)
		// The returned watermark covers whatever the source finished before
		// failing; auth failures advance nothing.
		if errors.Is(err, discovery.ErrAuthExpired) {
			return sourceResult{report: report, watermark: wm}
		}
		return sourceResult{report: report, watermark: next, advanced: next != wm}
	}

	logger.Info("source drained",
		zap.Int("fetched", report.Fetched),
		zap.Int("admitted", report.Admitted),
		zap.Int("noise_dropped", report.NoiseDropped),
	)
	return sourceResult{report: report, watermark: next, advanced: true}
}

// consume is the single resolver loop. It keeps the latest resolved state per
// entity so the sink receives one record per entity regardless of how many
// observations arrived.
func (o *Orchestrator) consume(ctx context.Context, in <-chan candidate, summary *discovery.RunSummary) ([]discovery.CanonicalRecord, error) {
	latest := make(map[string]discovery.CanonicalRecord)
	var order []string
	var fatalErr error

	for cand := range in {
		if fatalErr != nil {
			continue // keep draining so source goroutines never block
		}
		res, err := o.resolver.Resolve(ctx, cand.record, cand.authoritative)
		if err != nil {
			fatalErr = err
			continue
		}
		switch res.Action {
		case resolve.ActionCreated:
			summary.Created++
		case resolve.ActionMerged:
			summary.Merged++
		case resolve.ActionUnchanged:
			continue
		}
		if _, seen := latest[res.EntityKey]; !seen {
			order = append(order, res.EntityKey)
		}
		latest[res.EntityKey] = res.Record
	}

	records := make([]discovery.CanonicalRecord, 0, len(order))
	for _, key := range order {
		records = append(records, latest[key])
	}
	return records, fatalErr
}

// finish settles the summary status and records run telemetry.
func (o *Orchestrator) finish(summary discovery.RunSummary, fatalErr error) (discovery.RunSummary, error) {
	summary.FinishedAt = o.clock.Now()
	summary.Status = o.status(summary, fatalErr)
	if fatalErr != nil {
		summary.Err = fatalErr.Error()
	}
	telemetry.CountRun(string(summary.Status))

	o.logger.Info("discovery run finished",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)),
		zap.Int("created", summary.Created),
		zap.Int("merged", summary.Merged),
		zap.Int("emitted", summary.Emitted),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, fatalErr
}

func (o *Orchestrator) status(summary discovery.RunSummary, fatalErr error) discovery.RunStatus {
	if fatalErr != nil {
		return discovery.RunFailed
	}
	// Source failures never fail the run outright: the contained sources
	// produced what they could and checkpoints stayed consistent, so even an
	// every-source-down run reports partial.
	for _, rep := range summary.Sources {
		if rep.Status != discovery.SourceOK {
			return discovery.RunPartial
		}
	}
	return discovery.RunSuccess
}

func sourceFailureStatus(err error) discovery.SourceStatus {
	switch {
	case errors.Is(err, discovery.ErrAuthExpired):
		return discovery.SourceAuthExpired
	case errors.Is(err, discovery.ErrCircuitOpen):
		return discovery.SourceCircuitOpen
	default:
		return discovery.SourceFailed
	}
}
