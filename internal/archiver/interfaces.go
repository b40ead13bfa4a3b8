package archiver

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/IliaW/archive-spider/internal/model"
)

type ArchiveStore interface {
	LastArchiveTime(ctx context.Context, url string) (time.Time, bool, error)
	UpsertArchive(ctx context.Context, rec *model.ArchiveRecord) error
	UpsertBlocked(ctx context.Context, rec *model.BlockedRecord) error
}

type FreshnessLookup interface {
	FindLatest(ctx context.Context, url string, notBefore time.Time) (model.Lookup, error)
}

type Submitter interface {
	Submit(ctx context.Context, url string) (string, error)
}

// FreshnessCache is shared between processes running against the same archive.
type FreshnessCache interface {
	LastArchiveTime(url string) (time.Time, bool)
	SaveArchiveTime(url string, archivedAt time.Time, ttl time.Duration)
}
