package archiver

import (
	"context"
	"log/slog"
	"time"

	"github.com/IliaW/archive-spider/config"
	"github.com/IliaW/archive-spider/internal/model"
	"github.com/IliaW/archive-spider/internal/telemetry"
)

// Engine decides, for a single URL, whether the archive needs a new capture.
//
// The flow is CheckLocalFreshness -> (Skip | QueryRemoteFreshness) ->
// (RecordFresh | Submit) -> (RecordFresh | RecordBlocked). Decide never
// returns an error: failures are logged and folded into the decision.
type Engine struct {
	store     ArchiveStore
	lookup    FreshnessLookup
	submitter Submitter
	cache     FreshnessCache
	metrics   *telemetry.ArchiveMetrics
	cfg       *config.ArchiveConfig
	// Now is the engine clock. Replaced in tests.
	Now func() time.Time
}

// NewEngine builds an Engine. cache and metrics may be nil.
func NewEngine(cfg *config.ArchiveConfig, store ArchiveStore, lookup FreshnessLookup, submitter Submitter,
	cache FreshnessCache, metrics *telemetry.ArchiveMetrics) *Engine {
	if metrics == nil {
		metrics = telemetry.NoopArchiveMetrics()
	}

	return &Engine{
		store:     store,
		lookup:    lookup,
		submitter: submitter,
		cache:     cache,
		metrics:   metrics,
		cfg:       cfg,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Decide(ctx context.Context, url string) model.Decision {
	now := e.Now()

	if last, inStore, ok := e.lastKnownArchive(ctx, url); ok && e.isFresh(now, last) {
		slog.Debug("archive is fresh. skip.", slog.String("url", url), slog.Time("last_submit", last),
			slog.Bool("in_store", inStore))
		e.metrics.SkippedCnt(1)
		return model.Decision{URL: url, Outcome: model.Skipped, At: now, Persisted: inStore}
	}

	lookup, err := e.findLatest(ctx, url, now.Add(-e.cfg.RenewalPeriod()))
	if err != nil {
		slog.Error("archive lookup failed. submitting the url.", slog.String("url", url),
			slog.String("kind", model.LookupKind.String()), slog.String("err", err.Error()))
		e.metrics.LookupErrorCnt(1)
	} else if lookup.Found && e.isFresh(now, lookup.Memento.Timestamp) {
		slog.Debug("fresh memento found in the archive.", slog.String("url", url),
			slog.String("archive_url", lookup.Memento.RawURL))
		persisted := e.recordFresh(ctx, &model.ArchiveRecord{
			URL:             url,
			ArchiveProvider: e.cfg.Provider,
			LastSubmitTime:  lookup.Memento.Timestamp.UTC(),
			ArchiveURL:      lookup.Memento.RawURL,
		}, now)
		e.metrics.AdoptedCnt(1)
		return model.Decision{URL: url, Outcome: model.Adopted, ArchiveURL: lookup.Memento.RawURL, At: now,
			Persisted: persisted}
	}

	return e.submit(ctx, url, now)
}

func (e *Engine) findLatest(ctx context.Context, url string, notBefore time.Time) (model.Lookup, error) {
	lookupCtx := ctx
	if e.cfg.LookupTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, e.cfg.LookupTimeout)
		defer cancel()
	}

	return e.lookup.FindLatest(lookupCtx, url, notBefore)
}

func (e *Engine) submit(ctx context.Context, url string, now time.Time) model.Decision {
	submitCtx := ctx
	if e.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, e.cfg.SubmitTimeout)
		defer cancel()
	}

	archiveURL, err := e.submitter.Submit(submitCtx, url)
	if err != nil {
		reason := model.BlockReasonFor(err)
		slog.Warn("archive submission failed.", slog.String("url", url),
			slog.String("kind", model.KindOf(err).String()), slog.String("reason", string(reason)),
			slog.String("err", err.Error()))
		if reason == model.ReasonRobotsTxt {
			e.metrics.BlockedRobotsCnt(1)
		} else {
			e.metrics.BlockedUnknownCnt(1)
		}
		persisted := e.recordBlocked(ctx, &model.BlockedRecord{URL: url, Reason: reason, LastCheckTime: now})
		return model.Decision{URL: url, Outcome: model.Blocked, Reason: reason, At: now, Persisted: persisted}
	}

	slog.Info("url submitted to the archive.", slog.String("url", url), slog.String("archive_url", archiveURL))
	e.metrics.SubmittedCnt(1)
	persisted := e.recordFresh(ctx, &model.ArchiveRecord{
		URL:             url,
		ArchiveProvider: e.cfg.Provider,
		LastSubmitTime:  now,
		ArchiveURL:      archiveURL,
	}, now)

	return model.Decision{URL: url, Outcome: model.Submitted, ArchiveURL: archiveURL, At: now, Persisted: persisted}
}

// isFresh reports whether an archive taken at t is still within the renewal period. The boundary is inclusive.
func (e *Engine) isFresh(now, t time.Time) bool {
	return now.Sub(t) <= e.cfg.RenewalPeriod()
}

// lastKnownArchive also reports whether the answer came from the store rather than the shared cache.
func (e *Engine) lastKnownArchive(ctx context.Context, url string) (last time.Time, inStore, ok bool) {
	last, found, err := e.store.LastArchiveTime(ctx, url)
	if err != nil {
		slog.Error("failed to read archive record.", slog.String("url", url),
			slog.String("kind", model.StoreKind.String()), slog.String("err", err.Error()))
		e.metrics.StoreErrorCnt(1)
		found = false
	}
	if found || e.cache == nil {
		return last, found, found
	}
	last, ok = e.cache.LastArchiveTime(url)

	return last, false, ok
}

func (e *Engine) recordFresh(ctx context.Context, rec *model.ArchiveRecord, now time.Time) bool {
	if e.cache != nil {
		if ttl := e.cfg.RenewalPeriod() - now.Sub(rec.LastSubmitTime); ttl > 0 {
			e.cache.SaveArchiveTime(rec.URL, rec.LastSubmitTime, ttl)
		}
	}
	if err := e.store.UpsertArchive(ctx, rec); err != nil {
		slog.Error("failed to save archive record.", slog.String("url", rec.URL),
			slog.String("kind", model.StoreKind.String()), slog.String("err", err.Error()))
		e.metrics.StoreErrorCnt(1)
		return false
	}

	return true
}

func (e *Engine) recordBlocked(ctx context.Context, rec *model.BlockedRecord) bool {
	if err := e.store.UpsertBlocked(ctx, rec); err != nil {
		slog.Error("failed to save blocked record.", slog.String("url", rec.URL),
			slog.String("kind", model.StoreKind.String()), slog.String("err", err.Error()))
		e.metrics.StoreErrorCnt(1)
		return false
	}

	return true
}
