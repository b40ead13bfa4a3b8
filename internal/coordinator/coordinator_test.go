package coordinator

import (
	"context"
	"errors"
	netUrl "net/url"
	"sync"
	"testing"

	"github.com/IliaW/archive-spider/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	links   map[[2]string]struct{}
	blocked []*model.BlockedRecord
	linkErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{links: make(map[[2]string]struct{})}
}

func (m *memoryStore) InsertExternalLink(_ context.Context, rec *model.ExternalLinkRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.linkErr != nil {
		return false, m.linkErr
	}
	key := [2]string{rec.ExternalURL, rec.FoundOnPage}
	if _, ok := m.links[key]; ok {
		return false, nil
	}
	m.links[key] = struct{}{}
	return true, nil
}

func (m *memoryStore) UpsertBlocked(_ context.Context, rec *model.BlockedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked = append(m.blocked, rec)
	return nil
}

type denyAll bool

func (d denyAll) IsAllowed(string) bool { return !bool(d) }

type decideFunc func(ctx context.Context, url string) model.Decision

func (f decideFunc) Decide(ctx context.Context, url string) model.Decision { return f(ctx, url) }

type collectingPublisher struct {
	results []*model.Result
	err     error
}

func (p *collectingPublisher) Publish(_ context.Context, r *model.Result) error {
	p.results = append(p.results, r)
	return p.err
}

func submitted(_ context.Context, url string) model.Decision {
	return model.Decision{URL: url, Outcome: model.Submitted, ArchiveURL: "https://web.archive.org/web/2024/" + url,
		Persisted: true}
}

func newTestCoordinator(t *testing.T, store Store, filter RuleFilter, engine Decider,
	publisher ResultPublisher) *Coordinator {
	t.Helper()

	base, err := netUrl.Parse("https://Example.com")
	require.NoError(t, err)

	return NewCoordinator("session-1", base, true, store, filter, engine, publisher, nil)
}

func TestHandlePage_RecordsOffsiteLinksOnce(t *testing.T) {
	store := newMemoryStore()
	c := newTestCoordinator(t, store, denyAll(false), decideFunc(submitted), nil)

	c.HandlePage(context.Background(), model.Page{
		URL: "https://example.com/p1",
		Links: []string{
			"https://x.com/a",
			"https://x.com/a#section",
			"https://example.com/about",
			"https://EXAMPLE.com/contact",
			"mailto:someone@example.com",
			"ftp://files.x.com/a",
			"/relative",
			"http://y.org/",
		},
	})

	assert.Len(t, store.links, 2)
	assert.Contains(t, store.links, [2]string{"https://x.com/a", "https://example.com/p1"})
	assert.Contains(t, store.links, [2]string{"http://y.org/", "https://example.com/p1"})
}

func TestHandlePage_OffsiteCollectionDisabled(t *testing.T) {
	store := newMemoryStore()
	c := newTestCoordinator(t, store, denyAll(false), decideFunc(submitted), nil)
	c.collectOffsite = false

	c.HandlePage(context.Background(), model.Page{URL: "https://example.com/p1", Links: []string{"https://x.com/a"}})

	assert.Empty(t, store.links)
}

func TestHandlePage_LinkStoreErrorDoesNotStopThePage(t *testing.T) {
	store := newMemoryStore()
	store.linkErr = errors.New("disk full")
	c := newTestCoordinator(t, store, denyAll(false), decideFunc(submitted), nil)

	result := c.HandlePage(context.Background(), model.Page{URL: "https://example.com/p1",
		Links: []string{"https://x.com/a"}})

	require.NotNil(t, result)
	assert.Equal(t, model.Submitted, result.Outcome)
}

func TestHandlePage_RejectedByRules(t *testing.T) {
	called := false
	c := newTestCoordinator(t, newMemoryStore(), denyAll(true), decideFunc(func(ctx context.Context,
		url string) model.Decision {
		called = true
		return submitted(ctx, url)
	}), nil)

	result := c.HandlePage(context.Background(), model.Page{URL: "https://example.com/private/1"})

	assert.False(t, called)
	assert.Equal(t, model.Rejected, result.Outcome)
	assert.Nil(t, result.ArchiveURL)
}

func TestHandlePage_PanicBecomesBlocked(t *testing.T) {
	store := newMemoryStore()
	c := newTestCoordinator(t, store, denyAll(false), decideFunc(func(context.Context, string) model.Decision {
		panic("nil pointer somewhere")
	}), nil)

	result := c.HandlePage(context.Background(), model.Page{URL: "https://example.com/p1"})

	require.NotNil(t, result)
	assert.Equal(t, model.Blocked, result.Outcome)
	assert.Equal(t, model.ReasonUnknownError, result.Reason)
	require.Len(t, store.blocked, 1)
	assert.Equal(t, "https://example.com/p1", store.blocked[0].URL)
	assert.Equal(t, model.ReasonUnknownError, store.blocked[0].Reason)
}

func TestHandlePage_NotStartedAfterShutdown(t *testing.T) {
	called := false
	c := newTestCoordinator(t, newMemoryStore(), denyAll(false), decideFunc(func(ctx context.Context,
		url string) model.Decision {
		called = true
		return submitted(ctx, url)
	}), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := c.HandlePage(ctx, model.Page{URL: "https://example.com/p1"})

	assert.Nil(t, result)
	assert.False(t, called)
}

func TestHandlePage_StartedPageSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestCoordinator(t, newMemoryStore(), denyAll(false), decideFunc(func(ctx context.Context,
		url string) model.Decision {
		cancel()
		assert.NoError(t, ctx.Err())
		return submitted(ctx, url)
	}), nil)

	result := c.HandlePage(ctx, model.Page{URL: "https://example.com/p1"})

	require.NotNil(t, result)
	assert.Equal(t, model.Submitted, result.Outcome)
}

func TestHandlePage_PublishesResult(t *testing.T) {
	publisher := &collectingPublisher{err: errors.New("broker down")}
	c := newTestCoordinator(t, newMemoryStore(), denyAll(false), decideFunc(submitted), publisher)

	result := c.HandlePage(context.Background(), model.Page{URL: "https://example.com/p1"})

	require.Len(t, publisher.results, 1)
	assert.Same(t, result, publisher.results[0])
	assert.Equal(t, "session-1", result.SessionID)
	require.NotNil(t, result.ArchiveURL)
	assert.Equal(t, "https://web.archive.org/web/2024/https://example.com/p1", *result.ArchiveURL)
}
