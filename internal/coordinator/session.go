package coordinator

import (
	"context"
	"log/slog"
	netUrl "net/url"
	"strings"

	"github.com/IliaW/archive-spider/config"
	"github.com/IliaW/archive-spider/internal/archiver"
	"github.com/IliaW/archive-spider/internal/persistence"
	"github.com/IliaW/archive-spider/internal/rules"
	"github.com/IliaW/archive-spider/internal/telemetry"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Dependencies are the outside collaborators of a session. SessionID, Cache
// and Publisher are optional.
type Dependencies struct {
	SessionID string
	Lookup    archiver.FreshnessLookup
	Submitter archiver.Submitter
	Cache     archiver.FreshnessCache
	Publisher ResultPublisher
	Metrics   *telemetry.ArchiveMetrics
}

// Session is one crawl of one site. Everything is resolved in NewSession,
// before the first page arrives.
type Session struct {
	ID          string
	BaseURL     *netUrl.URL
	Domain      string
	DB          *sqlx.DB
	Store       *persistence.ArchiveRepository
	Filter      *rules.Filter
	Engine      *archiver.Engine
	Coordinator *Coordinator
}

func NewSession(ctx context.Context, cfg *config.Config, deps Dependencies) (*Session, error) {
	baseURL, err := config.ParseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	db, err := persistence.Open(ctx, cfg.StoreSettings)
	if err != nil {
		return nil, err
	}
	store := persistence.NewArchiveRepository(db)

	domain := strings.ToLower(baseURL.Host)
	filter, err := rules.Load(ctx, store, domain)
	if err != nil {
		persistence.Close(db)
		return nil, err
	}

	engine := archiver.NewEngine(cfg.ArchiveSettings, store, deps.Lookup, deps.Submitter, deps.Cache, deps.Metrics)
	id := deps.SessionID
	if id == "" {
		id = uuid.New().String()
	}
	slog.Info("crawl session created.", slog.String("session", id), slog.String("url", baseURL.String()))

	return &Session{
		ID:      id,
		BaseURL: baseURL,
		Domain:  domain,
		DB:      db,
		Store:   store,
		Filter:  filter,
		Engine:  engine,
		Coordinator: NewCoordinator(id, baseURL, cfg.ArchiveSettings.CollectOffsiteLinks, store, filter, engine,
			deps.Publisher, deps.Metrics),
	}, nil
}

// Close releases the store. Call it only after the crawler has stopped.
func (s *Session) Close() {
	persistence.Close(s.DB)
}
