package wayback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	netUrl "net/url"
	"regexp"
	"strings"

	"github.com/IliaW/archive-spider/config"
	"github.com/IliaW/archive-spider/internal/model"
)

const runtimeErrorHeader = "X-Archive-Wayback-Runtime-Error"

var mementoLink = regexp.MustCompile(`<([^>]+)>;\s*rel="memento"`)

// Submitter asks Save Page Now to capture a URL.
type Submitter struct {
	client    *http.Client
	endpoint  *netUrl.URL
	userAgent string
}

func NewSubmitter(cfg *config.ArchiveConfig, transport http.RoundTripper) (*Submitter, error) {
	endpoint, err := netUrl.Parse(strings.TrimRight(cfg.SubmitEndpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse submit endpoint: %w", err)
	}

	return &Submitter{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.SubmitTimeout,
		},
		endpoint:  endpoint,
		userAgent: cfg.UserAgent,
	}, nil
}

// Submit returns the snapshot URL. Failures are always a *model.SubmitError.
func (s *Submitter) Submit(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint.String()+"/save/"+target, nil)
	if err != nil {
		return "", &model.SubmitError{Kind: model.FailureServiceError, Err: err}
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	slog.Debug("submitting url to save page now.", slog.String("url", target))
	resp, err := s.client.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if runtimeErr := resp.Header.Get(runtimeErrorHeader); runtimeErr != "" || resp.StatusCode == http.StatusForbidden {
		kind := model.FailureServiceError
		if strings.Contains(strings.ToLower(runtimeErr), "robots") {
			kind = model.FailureRobotsBlocked
		}
		if runtimeErr == "" {
			runtimeErr = http.StatusText(resp.StatusCode)
		}
		return "", &model.SubmitError{Kind: kind, StatusCode: resp.StatusCode, Err: errors.New(runtimeErr)}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &model.SubmitError{Kind: model.FailureRateLimited, StatusCode: resp.StatusCode,
			Err: errors.New("too many requests")}
	}
	if resp.StatusCode/100 != 2 {
		return "", &model.SubmitError{Kind: model.FailureServiceError, StatusCode: resp.StatusCode,
			Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	archiveURL, err := s.snapshotURL(resp)
	if err != nil {
		return "", &model.SubmitError{Kind: model.FailureServiceError, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.Header.Get("X-Page-Cache") == "HIT" {
		slog.Debug("save page now returned a cached capture.", slog.String("url", target))
	}

	return archiveURL, nil
}

func (s *Submitter) snapshotURL(resp *http.Response) (string, error) {
	if loc := resp.Header.Get("Content-Location"); loc != "" {
		return s.resolve(loc)
	}
	for _, link := range resp.Header.Values("Link") {
		if m := mementoLink.FindStringSubmatch(link); m != nil {
			return s.resolve(m[1])
		}
	}
	if resp.Request != nil && strings.HasPrefix(resp.Request.URL.Path, "/web/") {
		return resp.Request.URL.String(), nil
	}

	return "", errors.New("no archive url found in the save page now response")
}

func (s *Submitter) resolve(ref string) (string, error) {
	u, err := netUrl.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse archive url %q: %w", ref, err)
	}

	return s.endpoint.ResolveReference(u).String(), nil
}

func classifyTransportError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &model.SubmitError{Kind: model.FailureTimeout, Err: err}
	}

	return &model.SubmitError{Kind: model.FailureServiceError, Err: err}
}
