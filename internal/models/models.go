package models

import (
	"encoding/json"
	"time"
)

type Config struct {
	Databases []Database `json:"databases"`

	// Fingerprint identifies the exact file contents the rules were read from.
	Fingerprint string `json:"-"`
}

// Database is one cleanup rule: which database to query, with which filter.
type Database struct {
	ID      string          `json:"database_id"`
	Name    string          `json:"name,omitempty"`
	Filters json.RawMessage `json:"filters"`
	DryRun  bool            `json:"dry_run,omitempty"`
}

// Label returns the name to use in logs, falling back to the id.
func (d Database) Label() string {
	if d.Name != "" {
		return d.Name
	}

	return d.ID
}

type Record struct {
	ID string `json:"id"`
}

type Page struct {
	Records    []Record
	HasMore    bool
	NextCursor string
}

type DatabaseResult struct {
	Name       string   `json:"name"`
	DatabaseID string   `json:"database_id"`
	DryRun     bool     `json:"dry_run"`
	Matched    int      `json:"matched"`
	Archived   int      `json:"archived"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	Failures   []string `json:"failures,omitempty"`
	Error      string   `json:"error,omitempty"`
	Err        error    `json:"-"`
}

// Fatal reports whether the database could not be fully processed, as
// opposed to individual records failing.
func (r DatabaseResult) Fatal() bool {
	return r.Err != nil || r.Error != ""
}

type Totals struct {
	Databases int `json:"databases"`
	Matched   int `json:"matched"`
	Archived  int `json:"archived"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

type RunSummary struct {
	RunID       string           `json:"run_id"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Fingerprint string           `json:"config_fingerprint,omitempty"`
	DryRun      bool             `json:"dry_run"`
	Databases   []DatabaseResult `json:"databases"`
	Totals      Totals           `json:"totals"`
}

// Add appends a database result and folds its counts into the totals.
func (s *RunSummary) Add(r DatabaseResult) {
	if r.Err != nil && r.Error == "" {
		r.Error = r.Err.Error()
	}

	s.Databases = append(s.Databases, r)
	s.Totals.Databases++
	s.Totals.Matched += r.Matched
	s.Totals.Archived += r.Archived
	s.Totals.Failed += r.Failed
	s.Totals.Skipped += r.Skipped
	if r.Fatal() {
		s.Totals.Errors++
	}
}

// OK is false when at least one database hit a non per-record error.
func (s *RunSummary) OK() bool {
	return s.Totals.Errors == 0
}
