package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IliaW/archive-spider/internal/model"
	"github.com/jmoiron/sqlx"
)

const (
	upsertArchiveQuery = `INSERT INTO archives (url, archive, last_submit, archive_url)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (url) DO UPDATE
	SET archive = EXCLUDED.archive,
		last_submit = EXCLUDED.last_submit,
		archive_url = EXCLUDED.archive_url`

	upsertBlockedQuery = `INSERT INTO blocked (url, reason, last_check)
	VALUES (?, ?, ?)
	ON CONFLICT (url) DO UPDATE
	SET reason = EXCLUDED.reason,
		last_check = EXCLUDED.last_check`

	insertExternalLinkQuery = `INSERT INTO external_links (external_url, found_where, found_date)
	VALUES (?, ?, ?)
	ON CONFLICT (external_url, found_where) DO NOTHING`

	deleteBlockedQuery   = `DELETE FROM blocked WHERE url = ?`
	lastArchiveTimeQuery = `SELECT last_submit FROM archives WHERE url = ?`
	archiveQuery         = `SELECT url, archive, last_submit, archive_url FROM archives WHERE url = ?`
	blockedQuery         = `SELECT url, reason, last_check FROM blocked WHERE url = ?`
	rulesForDomainQuery  = `SELECT id, rule_type, rule, domain FROM scrape_rules WHERE domain = ? ORDER BY id`
	insertRuleQuery      = `INSERT INTO scrape_rules (rule_type, rule, domain) VALUES (?, ?, ?) RETURNING id`
)

// Formats a timestamp column may come back in, depending on driver and on who wrote the row.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type ArchiveRepository struct {
	db *sqlx.DB
}

func NewArchiveRepository(db *sqlx.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// UpsertArchive replaces the archive record for the URL and clears any blocked entry for it.
func (r *ArchiveRepository) UpsertArchive(ctx context.Context, rec *model.ArchiveRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive upsert: %w", err)
	}
	_, err = tx.ExecContext(ctx, r.db.Rebind(upsertArchiveQuery),
		rec.URL,
		rec.ArchiveProvider,
		rec.LastSubmitTime.UTC(),
		rec.ArchiveURL)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert archive: %w", err)
	}
	if _, err = tx.ExecContext(ctx, r.db.Rebind(deleteBlockedQuery), rec.URL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear blocked entry: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit archive upsert: %w", err)
	}
	slog.Debug("archive record saved to db.", slog.String("url", rec.URL))

	return nil
}

func (r *ArchiveRepository) UpsertBlocked(ctx context.Context, rec *model.BlockedRecord) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(upsertBlockedQuery),
		rec.URL,
		string(rec.Reason),
		rec.LastCheckTime.UTC())
	if err != nil {
		return fmt.Errorf("upsert blocked: %w", err)
	}
	slog.Debug("blocked record saved to db.", slog.String("url", rec.URL),
		slog.String("reason", string(rec.Reason)))

	return nil
}

// InsertExternalLink reports whether a new row was written. Re-discovery on the same page is a no-op.
func (r *ArchiveRepository) InsertExternalLink(ctx context.Context, rec *model.ExternalLinkRecord) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(insertExternalLinkQuery),
		rec.ExternalURL,
		rec.FoundOnPage,
		rec.FoundTime.UTC())
	if err != nil {
		return false, fmt.Errorf("insert external link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert external link: %w", err)
	}

	return n > 0, nil
}

// LastArchiveTime returns false when there is no record or the stored timestamp can't be used.
func (r *ArchiveRepository) LastArchiveTime(ctx context.Context, url string) (time.Time, bool, error) {
	var raw sql.NullString
	err := r.db.GetContext(ctx, &raw, r.db.Rebind(lastArchiveTimeQuery), url)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("select last archive time: %w", err)
	}
	t, ok := parseTimestamp(raw)
	if !ok {
		slog.Warn("unusable last submit time in db. treating as absent.", slog.String("url", url),
			slog.String("value", raw.String))
	}

	return t, ok, nil
}

func (r *ArchiveRepository) RulesForDomain(ctx context.Context, domain string) ([]model.ScrapeRule, error) {
	var rules []model.ScrapeRule
	if err := r.db.SelectContext(ctx, &rules, r.db.Rebind(rulesForDomainQuery), domain); err != nil {
		return nil, fmt.Errorf("select scrape rules: %w", err)
	}

	return rules, nil
}

func (r *ArchiveRepository) AddRule(ctx context.Context, rule *model.ScrapeRule) error {
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(insertRuleQuery),
		string(rule.RuleType),
		rule.RulePattern,
		rule.Domain).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("insert scrape rule: %w", err)
	}

	return nil
}

func (r *ArchiveRepository) Archive(ctx context.Context, url string) (*model.ArchiveRecord, bool, error) {
	var row struct {
		URL        string         `db:"url"`
		Archive    string         `db:"archive"`
		LastSubmit sql.NullString `db:"last_submit"`
		ArchiveURL sql.NullString `db:"archive_url"`
	}
	err := r.db.GetContext(ctx, &row, r.db.Rebind(archiveQuery), url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select archive: %w", err)
	}
	t, _ := parseTimestamp(row.LastSubmit)

	return &model.ArchiveRecord{
		URL:             row.URL,
		ArchiveProvider: row.Archive,
		LastSubmitTime:  t,
		ArchiveURL:      row.ArchiveURL.String,
	}, true, nil
}

func (r *ArchiveRepository) Blocked(ctx context.Context, url string) (*model.BlockedRecord, bool, error) {
	var row struct {
		URL       string         `db:"url"`
		Reason    string         `db:"reason"`
		LastCheck sql.NullString `db:"last_check"`
	}
	err := r.db.GetContext(ctx, &row, r.db.Rebind(blockedQuery), url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select blocked: %w", err)
	}
	t, _ := parseTimestamp(row.LastCheck)

	return &model.BlockedRecord{
		URL:           row.URL,
		Reason:        model.BlockReason(row.Reason),
		LastCheckTime: t,
	}, true, nil
}

func parseTimestamp(raw sql.NullString) (time.Time, bool) {
	if !raw.Valid {
		return time.Time{}, false
	}
	s := strings.TrimSpace(raw.String)
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	}

	return time.Time{}, false
}
