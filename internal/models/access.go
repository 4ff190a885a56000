package models

import "time"

// Placeholders substituted for request headers that are absent.
// Two requests missing the same header match on that field.
const (
	UnknownValue    = "unknown"
	DirectReferrer  = "direct"
	DefaultMIMEType = "image/jpeg"
)

// AccessEvent is a single view of a tracked image as seen by the edge.
type AccessEvent struct {
	ImageURL  string
	IPAddress string
	UserAgent string
	Referrer  string
	Timestamp time.Time
}

// AccessHistoryEntry is a persisted non-duplicate access.
type AccessHistoryEntry struct {
	ID         int64
	ImageURL   string
	IPAddress  string
	UserAgent  string
	Referrer   string
	AccessedAt time.Time
}

// AccessSummary holds the per-image aggregate row.
type AccessSummary struct {
	ImageURL string
	// AccessCount is the number of non-duplicate accesses recorded for the image.
	AccessCount int64
	UpdatedAt   time.Time
}

// AccessOutcome is the classification of an AccessEvent.
type AccessOutcome string

const (
	// OutcomeNew means the access was counted and recorded.
	OutcomeNew AccessOutcome = "new"
	// OutcomeDuplicate means an identical access was recorded within the window.
	OutcomeDuplicate AccessOutcome = "duplicate"
	// OutcomeInternal means the access came from the system's own front-end and was not tracked.
	OutcomeInternal AccessOutcome = "internal"
)
