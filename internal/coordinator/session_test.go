package coordinator

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"
	"time"

	"github.com/IliaW/archive-spider/config"
	"github.com/IliaW/archive-spider/internal/model"
	"github.com/IliaW/archive-spider/internal/wayback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptySearcher struct{}

func (emptySearcher) Search(context.Context, string, time.Time) iter.Seq2[model.Memento, error] {
	return func(func(model.Memento, error) bool) {}
}

type fakeSubmitter map[string]error

func (f fakeSubmitter) Submit(_ context.Context, url string) (string, error) {
	if err := f[url]; err != nil {
		return "", err
	}
	return "https://web.archive.org/web/2024/" + url, nil
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		BaseURL: "https://example.com",
		ArchiveSettings: &config.ArchiveConfig{
			RenewalPeriodDays:   365,
			CollectOffsiteLinks: true,
			SubmitTimeout:       time.Second,
			Provider:            model.WaybackMachine,
		},
		StoreSettings: &config.StoreConfig{
			Driver:       "sqlite3",
			Location:     filepath.Join(t.TempDir(), "archive.db"),
			MaxOpenConns: 1,
			MaxIdleConns: 1,
			PingRetries:  1,
		},
	}
}

func newTestSession(t *testing.T, cfg *config.Config, submitter fakeSubmitter) *Session {
	t.Helper()

	s, err := NewSession(context.Background(), cfg, Dependencies{
		Lookup:    wayback.NewLookupClient(emptySearcher{}),
		Submitter: submitter,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

func TestNewSession_RejectsBadBaseURL(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.BaseURL = "example.com"

	_, err := NewSession(context.Background(), cfg, Dependencies{})

	var cfgErr *config.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSession_EndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newTestConfig(t), fakeSubmitter{})
	assert.Equal(t, "example.com", s.Domain)

	before := time.Now().UTC().Add(-time.Second)
	result := s.Coordinator.HandlePage(ctx, model.Page{
		URL:   "https://example.com/about",
		Links: []string{"https://x.com/a", "https://example.com/contact"},
	})

	require.NotNil(t, result)
	assert.Equal(t, model.Submitted, result.Outcome)

	rec, found, err := s.Store.Archive(ctx, "https://example.com/about")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "https://example.com/about", rec.URL)
	assert.Equal(t, model.WaybackMachine, rec.ArchiveProvider)
	assert.Equal(t, "https://web.archive.org/web/2024/https://example.com/about", rec.ArchiveURL)
	assert.WithinRange(t, rec.LastSubmitTime, before, time.Now().UTC().Add(time.Second))

	var links int
	require.NoError(t, s.DB.GetContext(ctx, &links, "SELECT COUNT(*) FROM external_links"))
	assert.Equal(t, 1, links)
}

func TestSession_RulesLoadedAtConstruction(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	seed := newTestSession(t, cfg, fakeSubmitter{})
	require.NoError(t, seed.Store.AddRule(ctx, &model.ScrapeRule{
		RuleType:    model.LinkDeny,
		RulePattern: `https://example\.com/private/`,
		Domain:      "example.com",
	}))

	s := newTestSession(t, cfg, fakeSubmitter{})
	result := s.Coordinator.HandlePage(ctx, model.Page{URL: "https://example.com/private/1"})

	assert.Equal(t, model.Rejected, result.Outcome)
	_, found, err := s.Store.Archive(ctx, "https://example.com/private/1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSession_RobotsBlockedThenArchived(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	const page = "https://example.com/about"

	blocked := newTestSession(t, cfg, fakeSubmitter{
		page: &model.SubmitError{Kind: model.FailureRobotsBlocked, Err: errors.New("blocked by robots")},
	})
	result := blocked.Coordinator.HandlePage(ctx, model.Page{URL: page})
	assert.Equal(t, model.Blocked, result.Outcome)

	rec, found, err := blocked.Store.Blocked(ctx, page)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.ReasonRobotsTxt, rec.Reason)
	_, found, err = blocked.Store.Archive(ctx, page)
	require.NoError(t, err)
	assert.False(t, found)

	archived := newTestSession(t, cfg, fakeSubmitter{})
	result = archived.Coordinator.HandlePage(ctx, model.Page{URL: page})
	assert.Equal(t, model.Submitted, result.Outcome)

	_, found, err = archived.Store.Blocked(ctx, page)
	require.NoError(t, err)
	assert.False(t, found)
}
