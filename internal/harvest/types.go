// Package harvest defines core types shared across the harvesting subsystems.
package harvest

import (
	"time"
)

// Status represents the processing state of a business record.
type Status string

// Status values persisted in the record store.
const (
	StatusPending Status = "pending"
	StatusFound   Status = "found"
	StatusChecked Status = "checked"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Terminal reports whether s is one of the outcomes a harvest can produce.
func (s Status) Terminal() bool {
	switch s {
	case StatusFound, StatusChecked, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// BusinessRecord is the subset of a stored business the engine reads.
type BusinessRecord struct {
	ID           string `json:"id"`
	Website      string `json:"website"`
	BusinessName string `json:"business_name"`
	Status       Status `json:"status"`
}

// Record is the full stored view of a business, used for listing and export.
type Record struct {
	BusinessRecord
	Emails         []string       `json:"emails"`
	SocialProfiles SocialProfiles `json:"social_profiles"`
	ScrapedAt      *time.Time     `json:"scraped_at,omitempty"`
}

// Update carries the fields written back for one record after a harvest.
type Update struct {
	Status         Status
	Emails         []string
	SocialProfiles SocialProfiles
	ScrapedAt      time.Time
}

// Stats summarizes the record store.
type Stats struct {
	Total        int64 `json:"total"`
	WithWebsites int64 `json:"with_websites"`
	Pending      int64 `json:"pending"`
	Found        int64 `json:"found"`
	Checked      int64 `json:"checked"`
	Failed       int64 `json:"failed"`
	Skipped      int64 `json:"skipped"`
	WithSocial   int64 `json:"with_social"`
}

// ScoredEmail pairs an address with its ranking score.
type ScoredEmail struct {
	Address string `json:"address"`
	Score   int    `json:"score"`
}

// Result is the outcome of harvesting one website.
type Result struct {
	Website        string         `json:"website"`
	Domain         string         `json:"domain"`
	Status         Status         `json:"status"`
	Emails         []string       `json:"emails"`
	Scored         []ScoredEmail  `json:"scored,omitempty"`
	SocialProfiles SocialProfiles `json:"social_profiles"`
	PagesVisited   int            `json:"pages_visited"`
	Duration       time.Duration  `json:"duration"`
	Err            error          `json:"-"`
}

// Page is the content returned by a fetch in either mode.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Rendered   bool
}

// Event is published after a record's result has been persisted.
type Event struct {
	RunID          string         `json:"run_id"`
	RecordID       string         `json:"record_id"`
	Website        string         `json:"website"`
	Status         Status         `json:"status"`
	Emails         []string       `json:"emails"`
	SocialProfiles SocialProfiles `json:"social_profiles"`
	FinishedAt     time.Time      `json:"finished_at"`
}
