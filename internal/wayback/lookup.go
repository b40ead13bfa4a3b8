package wayback

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	netUrl "net/url"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/archive-spider/config"
	"github.com/IliaW/archive-spider/internal/model"
	"github.com/karust/gogetcrawl/common"
	"github.com/karust/gogetcrawl/wayback"
	"github.com/patrickmn/go-cache"
)

const (
	cdxTimestampLayout = "20060102150405"
	rawURLFormat       = "https://web.archive.org/web/%sid_/%s"
)

// Searcher yields every snapshot of url taken at or after notBefore. The
// sequence is finite, single-use and in no particular order.
type Searcher interface {
	Search(ctx context.Context, url string, notBefore time.Time) iter.Seq2[model.Memento, error]
}

type snapshot struct {
	timestamp string
	original  string
	status    string
}

// CDXSearcher queries the Wayback CDX API.
type CDXSearcher struct {
	client     *wayback.Wayback
	cfg        *config.ArchiveConfig
	localCache *cache.Cache
	mu         sync.Mutex
	getPages   func(url string, notBefore time.Time) ([]snapshot, error)
}

// NewCDXSearcher has small request limitations on the CDX side; results are kept
// in a local cache for lookup_cache_ttl to avoid asking twice for the same URL.
func NewCDXSearcher(cfg *config.ArchiveConfig) *CDXSearcher {
	s := &CDXSearcher{cfg: cfg}
	if cfg.LookupCacheTtl > 0 {
		s.localCache = cache.New(cfg.LookupCacheTtl, 2*cfg.LookupCacheTtl)
	}
	s.getPages = s.fetchPages

	c, err := wayback.New(timeoutSeconds(cfg.LookupTimeout), cfg.LookupRetries)
	if err != nil {
		slog.Error("failed to create wayback client", slog.String("err", err.Error()))
	}
	s.client = c

	return s
}

func (s *CDXSearcher) Search(ctx context.Context, url string, notBefore time.Time) iter.Seq2[model.Memento, error] {
	return func(yield func(model.Memento, error) bool) {
		snaps, err := s.snapshots(ctx, url, notBefore)
		if err != nil {
			yield(model.Memento{}, err)
			return
		}
		for _, snap := range snaps {
			if snap.original != "" && !sameResource(url, snap.original) {
				slog.Debug("skipping capture of another url.", slog.String("url", url),
					slog.String("original", snap.original))
				continue
			}
			if failedCapture(snap.status) {
				continue
			}
			ts, err := time.Parse(cdxTimestampLayout, snap.timestamp)
			if err != nil {
				slog.Debug("skipping malformed cdx timestamp.", slog.String("url", url),
					slog.String("timestamp", snap.timestamp))
				continue
			}
			if ts.Before(notBefore) {
				continue
			}
			original := snap.original
			if original == "" {
				original = url
			}
			m := model.Memento{Timestamp: ts, RawURL: fmt.Sprintf(rawURLFormat, snap.timestamp, original)}
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (s *CDXSearcher) snapshots(ctx context.Context, url string, notBefore time.Time) ([]snapshot, error) {
	if s.localCache != nil {
		if v, ok := s.localCache.Get(url); ok {
			return v.([]snapshot), nil
		}
	}

	type result struct {
		snaps []snapshot
		err   error
	}
	done := make(chan result, 1)
	go func() {
		snaps, err := s.getPages(url, notBefore)
		done <- result{snaps: snaps, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("wayback lookup for %s: %w", url, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("wayback lookup for %s: %w", url, r.err)
		}
		if s.localCache != nil {
			s.localCache.Set(url, r.snaps, cache.DefaultExpiration)
		}
		return r.snaps, nil
	}
}

func (s *CDXSearcher) fetchPages(url string, notBefore time.Time) ([]snapshot, error) {
	client, err := s.wayback()
	if err != nil {
		return nil, err
	}
	slog.Debug("searching for url in wayback.", slog.String("url", url))
	pages, err := client.GetPages(cdxRequest(url, notBefore))
	if err != nil {
		return nil, err
	}
	snaps := make([]snapshot, 0, len(pages))
	for _, p := range pages {
		snaps = append(snaps, snapshot{timestamp: p.Timestamp, original: p.Original, status: p.StatusCode})
	}

	return snaps, nil
}

// cdxRequest escapes the url because gogetcrawl pastes it into the query string as is.
func cdxRequest(url string, notBefore time.Time) common.RequestConfig {
	cfg := common.RequestConfig{URL: netUrl.QueryEscape(url)}
	if !notBefore.IsZero() {
		cfg.FromDate = notBefore.UTC().Format(cdxTimestampLayout)
	}

	return cfg
}

// failedCapture reports 4xx and 5xx captures. Redirects and revisits ("-") count as archived.
func failedCapture(status string) bool {
	return strings.HasPrefix(status, "4") || strings.HasPrefix(status, "5")
}

// sameResource compares urls the way the archive keys them: scheme, "www.", default ports,
// a trailing slash and query parameter order are ignored.
func sameResource(requested, original string) bool {
	a, ok := resourceKey(requested)
	if !ok {
		return false
	}
	b, ok := resourceKey(original)

	return ok && a == b
}

func resourceKey(raw string) (string, bool) {
	u, err := netUrl.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}
	key := host + strings.TrimSuffix(u.EscapedPath(), "/")
	if u.RawQuery != "" {
		key += "?" + u.Query().Encode()
	}

	return key, true
}

// The client may not be initialized when the application starts.
func (s *CDXSearcher) wayback() (*wayback.Wayback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	slog.Info("connection retry to wayback.")
	c, err := wayback.New(timeoutSeconds(s.cfg.LookupTimeout), s.cfg.LookupRetries)
	if err != nil {
		return nil, fmt.Errorf("connection to wayback failed: %w", err)
	}
	s.client = c

	return c, nil
}

func timeoutSeconds(d time.Duration) int {
	return max(int(d.Seconds()), 1)
}

// LookupClient answers "what is the newest archive of this URL".
type LookupClient struct {
	searcher Searcher
}

func NewLookupClient(searcher Searcher) *LookupClient {
	return &LookupClient{searcher: searcher}
}

// FindLatest scans the whole sequence and keeps the newest memento, since results
// are not delivered in chronological order. Errors are returned to the caller.
func (c *LookupClient) FindLatest(ctx context.Context, url string, notBefore time.Time) (model.Lookup, error) {
	var latest model.Lookup
	for m, err := range c.searcher.Search(ctx, url, notBefore) {
		if err != nil {
			return model.Lookup{}, err
		}
		if !latest.Found || m.Timestamp.After(latest.Memento.Timestamp) {
			latest = model.Lookup{Memento: m, Found: true}
		}
	}
	if latest.Found {
		slog.Debug("url found in wayback.", slog.String("url", url),
			slog.Time("timestamp", latest.Memento.Timestamp))
	} else {
		slog.Debug("url not found in wayback.", slog.String("url", url))
	}

	return latest, nil
}
