package model

import "time"

const WaybackMachine = "Wayback Machine"

type ArchiveRecord struct {
	URL             string    `json:"url" db:"url"`
	ArchiveProvider string    `json:"archive_provider" db:"archive"`
	LastSubmitTime  time.Time `json:"last_submit_time" db:"last_submit"`
	ArchiveURL      string    `json:"archive_url" db:"archive_url"`
}

type BlockReason string

const (
	ReasonRobotsTxt    BlockReason = "robots_txt"
	ReasonUnknownError BlockReason = "unknown_error"
)

type BlockedRecord struct {
	URL           string      `json:"url" db:"url"`
	Reason        BlockReason `json:"reason" db:"reason"`
	LastCheckTime time.Time   `json:"last_check_time" db:"last_check"`
}

type ExternalLinkRecord struct {
	ExternalURL string    `json:"external_url" db:"external_url"`
	FoundOnPage string    `json:"found_where" db:"found_where"`
	FoundTime   time.Time `json:"found_date" db:"found_date"`
}

type RuleType string

const LinkDeny RuleType = "link_deny"

type ScrapeRule struct {
	ID          int64    `json:"id" db:"id"`
	RuleType    RuleType `json:"rule_type" db:"rule_type"`
	RulePattern string   `json:"rule" db:"rule"`
	Domain      string   `json:"domain" db:"domain"`
}

// Memento is a timestamped snapshot of a URL held by the archive.
type Memento struct {
	Timestamp time.Time
	RawURL    string
}

// Lookup is the result of a freshness query. Memento is meaningful only when Found is true.
type Lookup struct {
	Memento Memento
	Found   bool
}
