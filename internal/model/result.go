package model

import (
	"fmt"
	"time"
)

type Outcome int

const (
	Skipped Outcome = iota
	Adopted
	Submitted
	Blocked
	Rejected
)

var outcomeNames = [...]string{"skipped", "adopted", "submitted", "blocked", "rejected"}

func (o Outcome) String() string {
	return outcomeNames[o]
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	for i, name := range outcomeNames {
		if name == string(text) {
			*o = Outcome(i)
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Decision is what the decision engine concluded for one URL.
type Decision struct {
	URL        string
	Outcome    Outcome
	ArchiveURL string
	Reason     BlockReason
	At         time.Time
	// Persisted is false when the store write for this decision failed.
	Persisted bool
}

// Page is a fetched page handed over by the crawl engine.
type Page struct {
	URL   string
	Body  []byte
	Links []string
}

// Result is the per-page record emitted for downstream export.
type Result struct {
	SessionID  string      `json:"session_id"`
	URL        string      `json:"url"`
	ArchiveURL *string     `json:"archive"`
	Outcome    Outcome     `json:"outcome"`
	Reason     BlockReason `json:"reason,omitempty"`
	DecidedAt  time.Time   `json:"decided_at"`
}

func NewResult(sessionID string, d Decision) *Result {
	r := &Result{
		SessionID: sessionID,
		URL:       d.URL,
		Outcome:   d.Outcome,
		Reason:    d.Reason,
		DecidedAt: d.At,
	}
	if d.ArchiveURL != "" {
		archiveURL := d.ArchiveURL
		r.ArchiveURL = &archiveURL
	}
	return r
}
