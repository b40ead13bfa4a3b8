package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	netUrl "net/url"
	"strings"
	"time"

	"github.com/IliaW/archive-spider/internal/model"
	"github.com/IliaW/archive-spider/internal/telemetry"
)

type Store interface {
	InsertExternalLink(ctx context.Context, rec *model.ExternalLinkRecord) (bool, error)
	UpsertBlocked(ctx context.Context, rec *model.BlockedRecord) error
}

type RuleFilter interface {
	IsAllowed(url string) bool
}

type Decider interface {
	Decide(ctx context.Context, url string) model.Decision
}

type ResultPublisher interface {
	Publish(ctx context.Context, result *model.Result) error
}

// Coordinator receives every page fetched by the crawler. It never fails:
// per-page problems end up in the store and the logs, never in the caller.
type Coordinator struct {
	sessionID      string
	allowedHost    string
	collectOffsite bool
	store          Store
	filter         RuleFilter
	engine         Decider
	publisher      ResultPublisher
	metrics        *telemetry.ArchiveMetrics
	now            func() time.Time
}

func NewCoordinator(sessionID string, baseURL *netUrl.URL, collectOffsite bool, store Store, filter RuleFilter,
	engine Decider, publisher ResultPublisher, metrics *telemetry.ArchiveMetrics) *Coordinator {
	if metrics == nil {
		metrics = telemetry.NoopArchiveMetrics()
	}

	return &Coordinator{
		sessionID:      sessionID,
		allowedHost:    strings.ToLower(baseURL.Host),
		collectOffsite: collectOffsite,
		store:          store,
		filter:         filter,
		engine:         engine,
		publisher:      publisher,
		metrics:        metrics,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// HandlePage records the off-site links of the page and decides whether the
// page itself needs archiving. A page is not started once ctx is done, but a
// started page always runs to its terminal store write. Returns nil only for
// pages that were not started.
func (c *Coordinator) HandlePage(ctx context.Context, page model.Page) *model.Result {
	if ctx.Err() != nil {
		slog.Info("shutting down. page is not processed.", slog.String("url", page.URL))
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	if c.collectOffsite {
		c.recordOffsiteLinks(ctx, page)
	}

	var d model.Decision
	if c.filter.IsAllowed(page.URL) {
		d = c.decide(ctx, page.URL)
	} else {
		c.metrics.RejectedCnt(1)
		d = model.Decision{URL: page.URL, Outcome: model.Rejected, At: c.now(), Persisted: true}
	}

	result := model.NewResult(c.sessionID, d)
	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, result); err != nil {
			slog.Error("failed to publish result.", slog.String("url", page.URL), slog.String("err", err.Error()))
		}
	}

	return result
}

func (c *Coordinator) decide(ctx context.Context, url string) (d model.Decision) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		slog.Error("archive decision panicked. recording the page as blocked.", slog.String("url", url),
			slog.String("err", fmt.Sprint(r)))
		c.metrics.BlockedUnknownCnt(1)
		now := c.now()
		d = model.Decision{URL: url, Outcome: model.Blocked, Reason: model.ReasonUnknownError, At: now,
			Persisted: true}
		err := c.store.UpsertBlocked(ctx, &model.BlockedRecord{URL: url, Reason: model.ReasonUnknownError,
			LastCheckTime: now})
		if err != nil {
			slog.Error("failed to save blocked record.", slog.String("url", url),
				slog.String("kind", model.StoreKind.String()), slog.String("err", err.Error()))
			c.metrics.StoreErrorCnt(1)
			d.Persisted = false
		}
	}()

	return c.engine.Decide(ctx, url)
}

func (c *Coordinator) recordOffsiteLinks(ctx context.Context, page model.Page) {
	now := c.now()
	for _, link := range c.offsiteLinks(page.Links) {
		inserted, err := c.store.InsertExternalLink(ctx, &model.ExternalLinkRecord{
			ExternalURL: link,
			FoundOnPage: page.URL,
			FoundTime:   now,
		})
		if err != nil {
			slog.Error("failed to save external link.", slog.String("url", link),
				slog.String("kind", model.StoreKind.String()), slog.String("err", err.Error()))
			c.metrics.StoreErrorCnt(1)
			continue
		}
		if inserted {
			c.metrics.ExternalLinkCnt(1)
		}
	}
}

// offsiteLinks keeps absolute http(s) links to other hosts, without fragments and duplicates.
func (c *Coordinator) offsiteLinks(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	offsite := make([]string, 0)
	for _, link := range links {
		u, err := netUrl.Parse(strings.TrimSpace(link))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if strings.ToLower(u.Host) == c.allowedHost {
			continue
		}
		u.Fragment = ""
		normalized := u.String()
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		offsite = append(offsite, normalized)
	}

	return offsite
}
