package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	netUrl "net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IliaW/archive-spider/config"
	"github.com/IliaW/archive-spider/internal/model"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"
)

const retriesKey = "too_many_requests_retries"

type PageHandler interface {
	HandlePage(ctx context.Context, page model.Page) *model.Result
}

// SiteCrawler walks a single site and hands every fetched HTML page to the
// handler. Politeness is enforced by the collector's limit rule.
type SiteCrawler struct {
	collector *colly.Collector
	handler   PageHandler
	cfg       *config.CrawlerConfig
	pages     atomic.Int64
}

func NewSiteCrawler(cfg *config.CrawlerConfig, baseURL *netUrl.URL, handler PageHandler,
	transport http.RoundTripper) (*SiteCrawler, error) {
	domains := []string{strings.ToLower(baseURL.Hostname())}
	if host := strings.ToLower(baseURL.Host); host != domains[0] {
		domains = append(domains, host)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(domains...),
		colly.UserAgent(cfg.UserAgent),
		colly.MaxDepth(cfg.MaxDepth),
		colly.Async(true),
	)
	c.IgnoreRobotsTxt = false
	if transport != nil {
		c.WithTransport(transport)
	}
	if cfg.RequestTimeout > 0 {
		c.SetRequestTimeout(cfg.RequestTimeout)
	}
	err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.MaxConcurrentRequestsPerDomain,
		Delay:       cfg.PerDomainDelay(),
	})
	if err != nil {
		return nil, fmt.Errorf("set crawl limits: %w", err)
	}

	return &SiteCrawler{
		collector: c,
		handler:   handler,
		cfg:       cfg,
	}, nil
}

// Run crawls from start until the site is exhausted or ctx is done. Pages
// already being handled when ctx is done are finished; no new request is made.
func (s *SiteCrawler) Run(ctx context.Context, start string) error {
	s.setupCollector(ctx)

	slog.Info("starting crawl.", slog.String("url", start))
	if err := s.collector.Visit(start); err != nil {
		return fmt.Errorf("visit %s: %w", start, err)
	}
	s.collector.Wait()
	slog.Info("crawl finished.", slog.Int64("pages", s.pages.Load()))

	return nil
}

func (s *SiteCrawler) Pages() int64 {
	return s.pages.Load()
}

func (s *SiteCrawler) setupCollector(ctx context.Context) {
	s.collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			slog.Debug("shutting down. request aborted.", slog.String("url", r.URL.String()))
			r.Abort()
		}
	})

	s.collector.OnResponse(func(r *colly.Response) {
		if !strings.Contains(strings.ToLower(r.Headers.Get("Content-Type")), "html") {
			return
		}
		links, err := extractLinks(r)
		if err != nil {
			slog.Warn("failed to parse page.", slog.String("url", r.Request.URL.String()),
				slog.String("err", err.Error()))
		}

		page := model.Page{URL: r.Request.URL.String(), Body: r.Body, Links: links}
		if s.handler.HandlePage(ctx, page) != nil {
			s.pages.Add(1)
		}

		for _, link := range links {
			s.visit(r.Request, link)
		}
	})

	s.collector.OnError(func(r *colly.Response, err error) {
		url := r.Request.URL.String()
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			slog.Debug("skipped by robots.txt.", slog.String("url", url))
			return
		}
		if r.StatusCode == http.StatusTooManyRequests && s.retry(ctx, r) {
			return
		}
		slog.Warn("failed to fetch page.", slog.String("url", url), slog.Int("status_code", r.StatusCode),
			slog.String("err", err.Error()))
	})
}

// retry waits with a doubling delay and requests the page again.
func (s *SiteCrawler) retry(ctx context.Context, r *colly.Response) bool {
	// the colly context is shared with every page discovered from this one
	key := retriesKey + ":" + r.Request.URL.String()
	attempt, _ := strconv.Atoi(r.Ctx.Get(key))
	if attempt >= s.cfg.TooManyRequestsRetries {
		return false
	}
	delay := max(s.cfg.PerDomainDelay(), time.Second) << attempt
	slog.Warn("too many requests status code. retrying...", slog.String("url", r.Request.URL.String()),
		slog.Int("attempts left", s.cfg.TooManyRequestsRetries-attempt))
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
	}
	r.Ctx.Put(key, strconv.Itoa(attempt+1))
	if err := r.Request.Retry(); err != nil {
		slog.Error("retry failed.", slog.String("url", r.Request.URL.String()), slog.String("err", err.Error()))
	}

	return true
}

func (s *SiteCrawler) visit(from *colly.Request, link string) {
	err := from.Visit(link)
	if err == nil || errors.Is(err, colly.ErrAlreadyVisited) || errors.Is(err, colly.ErrForbiddenDomain) ||
		errors.Is(err, colly.ErrMaxDepth) {
		return
	}
	slog.Debug("link not followed.", slog.String("url", link), slog.String("err", err.Error()))
}

// extractLinks returns the absolute http(s) targets of every anchor, without fragments.
func extractLinks(r *colly.Response) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}

	links := make([]string, 0)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs := r.Request.AbsoluteURL(strings.TrimSpace(href))
		if abs == "" {
			return
		}
		u, err := netUrl.Parse(abs)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		u.Fragment = ""
		links = append(links, u.String())
	})

	return links, nil
}
