package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/IliaW/archive-spider/config"
	"github.com/IliaW/archive-spider/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*ArchiveRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewArchiveRepository(sqlx.NewDb(mockDB, "postgres")), mock
}

func newSQLiteRepo(t *testing.T) (*ArchiveRepository, *sqlx.DB) {
	t.Helper()

	db, err := Open(context.Background(), &config.StoreConfig{
		Driver:       "sqlite3",
		Location:     filepath.Join(t.TempDir(), "archive.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingRetries:  1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewArchiveRepository(db), db
}

func TestUpsertArchive_SingleStatementAndClearsBlocked(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO archives .+ ON CONFLICT \(url\) DO UPDATE`).
		WithArgs("https://example.com/about", "Wayback Machine", now, "https://web.archive.org/web/2024/x").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM blocked WHERE url = \$1`).
		WithArgs("https://example.com/about").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.UpsertArchive(context.Background(), &model.ArchiveRecord{
		URL:             "https://example.com/about",
		ArchiveProvider: "Wayback Machine",
		LastSubmitTime:  now,
		ArchiveURL:      "https://web.archive.org/web/2024/x",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertArchive_RollbackOnFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO archives`).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.UpsertArchive(context.Background(), &model.ArchiveRecord{URL: "https://example.com/"})
	require.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBlocked_Query(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO blocked .+ ON CONFLICT \(url\) DO UPDATE`).
		WithArgs("https://example.com/private", "robots_txt", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertBlocked(context.Background(), &model.BlockedRecord{
		URL:           "https://example.com/private",
		Reason:        model.ReasonRobotsTxt,
		LastCheckTime: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertExternalLink_IgnoresConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO external_links .+ ON CONFLICT \(external_url, found_where\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.InsertExternalLink(context.Background(), &model.ExternalLinkRecord{
		ExternalURL: "https://x.com/a",
		FoundOnPage: "https://site.com/p1",
		FoundTime:   time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastArchiveTime_Malformed(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT last_submit FROM archives WHERE url`).
		WithArgs("https://example.com/").
		WillReturnRows(sqlmock.NewRows([]string{"last_submit"}).AddRow("yesterday-ish"))

	_, ok, err := repo.LastArchiveTime(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLastArchiveTime_PythonIsoFormat(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT last_submit FROM archives WHERE url`).
		WithArgs("https://example.com/").
		WillReturnRows(sqlmock.NewRows([]string{"last_submit"}).AddRow("2021-06-24 10:11:12.123456+00:00"))

	got, ok, err := repo.LastArchiveTime(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2021, 6, 24, 10, 11, 12, 123456000, time.UTC), got)
}

func TestSQLite_SchemaIsIdempotent(t *testing.T) {
	_, db := newSQLiteRepo(t)

	require.NoError(t, EnsureSchema(context.Background(), db))
	require.NoError(t, EnsureSchema(context.Background(), db))

	var count int
	require.NoError(t, db.Get(&count,
		`SELECT count(name) FROM sqlite_master WHERE type = 'table' AND name IN ('archives', 'blocked', 'external_links', 'scrape_rules')`))
	assert.Equal(t, 4, count)
}

func TestSQLite_ExternalLinkDedup(t *testing.T) {
	repo, db := newSQLiteRepo(t)
	ctx := context.Background()
	link := &model.ExternalLinkRecord{
		ExternalURL: "https://x.com/a",
		FoundOnPage: "https://site.com/p1",
		FoundTime:   time.Now(),
	}

	inserted, err := repo.InsertExternalLink(ctx, link)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertExternalLink(ctx, link)
	require.NoError(t, err)
	assert.False(t, inserted)

	var count int
	require.NoError(t, db.Get(&count, `SELECT count(*) FROM external_links`))
	assert.Equal(t, 1, count)

	other := *link
	other.FoundOnPage = "https://site.com/p2"
	inserted, err = repo.InsertExternalLink(ctx, &other)
	require.NoError(t, err)
	assert.True(t, inserted)

	require.NoError(t, db.Get(&count, `SELECT count(*) FROM external_links`))
	assert.Equal(t, 2, count)
}

func TestSQLite_UpsertArchiveReplacesRecord(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()
	first := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	second := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertArchive(ctx, &model.ArchiveRecord{
		URL: "https://example.com/", ArchiveProvider: "Wayback Machine", LastSubmitTime: first, ArchiveURL: "a",
	}))
	require.NoError(t, repo.UpsertArchive(ctx, &model.ArchiveRecord{
		URL: "https://example.com/", ArchiveProvider: "Wayback Machine", LastSubmitTime: second, ArchiveURL: "b",
	}))

	rec, ok, err := repo.Archive(ctx, "https://example.com/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", rec.ArchiveURL)
	assert.True(t, second.Equal(rec.LastSubmitTime))

	last, ok, err := repo.LastArchiveTime(ctx, "https://example.com/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, second.Equal(last))
}

func TestSQLite_SuccessSupersedesBlocked(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertBlocked(ctx, &model.BlockedRecord{
		URL: "https://example.com/", Reason: model.ReasonUnknownError, LastCheckTime: time.Now(),
	}))
	_, ok, err := repo.Blocked(ctx, "https://example.com/")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.UpsertArchive(ctx, &model.ArchiveRecord{
		URL: "https://example.com/", ArchiveProvider: "Wayback Machine", LastSubmitTime: time.Now(), ArchiveURL: "a",
	}))

	_, ok, err = repo.Blocked(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_MalformedLastSubmitIsAbsent(t *testing.T) {
	repo, db := newSQLiteRepo(t)

	_, err := db.Exec(`INSERT INTO archives (url, archive, last_submit, archive_url) VALUES (?, ?, ?, ?)`,
		"https://example.com/", "Wayback Machine", "not a date", "a")
	require.NoError(t, err)

	_, ok, err := repo.LastArchiveTime(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_RulesForDomain(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AddRule(ctx, &model.ScrapeRule{
		RuleType: model.LinkDeny, RulePattern: `.*index\.php.*`, Domain: "example.com",
	}))
	require.NoError(t, repo.AddRule(ctx, &model.ScrapeRule{
		RuleType: model.LinkDeny, RulePattern: `.*`, Domain: "other.org",
	}))

	rules, err := repo.RulesForDomain(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, model.LinkDeny, rules[0].RuleType)
	assert.NotZero(t, rules[0].ID)

	rules, err = repo.RulesForDomain(ctx, "nowhere.net")
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestSQLite_ConcurrentWritersLeaveOneWholeRow(t *testing.T) {
	db, err := Open(context.Background(), &config.StoreConfig{
		Driver:       "sqlite3",
		Location:     filepath.Join(t.TempDir(), "archive.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
		PingRetries:  1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := NewArchiveRepository(db)

	ctx := context.Background()
	const url = "https://example.com/contested"
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	reasons := []model.BlockReason{model.ReasonRobotsTxt, model.ReasonUnknownError}

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- repo.UpsertArchive(ctx, &model.ArchiveRecord{
				URL:             url,
				ArchiveProvider: "Wayback Machine",
				LastSubmitTime:  base.Add(time.Duration(i) * time.Minute),
				ArchiveURL:      fmt.Sprintf("archive-%d", i),
			})
		}()
		go func() {
			defer wg.Done()
			errs <- repo.UpsertBlocked(ctx, &model.BlockedRecord{
				URL:           url,
				Reason:        reasons[i%2],
				LastCheckTime: base.Add(time.Duration(i) * time.Hour),
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, db.Get(&count, `SELECT count(*) FROM archives WHERE url = ?`, url))
	assert.Equal(t, 1, count)

	rec, ok, err := repo.Archive(ctx, url)
	require.NoError(t, err)
	require.True(t, ok)
	var i int
	_, err = fmt.Sscanf(rec.ArchiveURL, "archive-%d", &i)
	require.NoError(t, err)
	assert.True(t, base.Add(time.Duration(i)*time.Minute).Equal(rec.LastSubmitTime),
		"archive url and submit time come from different writes")

	blocked, ok, err := repo.Blocked(ctx, url)
	require.NoError(t, err)
	if ok {
		hours := int(blocked.LastCheckTime.Sub(base) / time.Hour)
		assert.Equal(t, reasons[hours%2], blocked.Reason, "reason and check time come from different writes")
	}
}
