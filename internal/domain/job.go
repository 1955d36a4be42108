package domain

import "time"

// ReadingKind enumerates supported reading categories.
type ReadingKind string

const (
	KindPalm       ReadingKind = "palm"
	KindNumerology ReadingKind = "numerology"
	KindAstrology  ReadingKind = "astrology"
)

// Valid reports whether k is a known reading kind.
func (k ReadingKind) Valid() bool {
	switch k {
	case KindPalm, KindNumerology, KindAstrology:
		return true
	}
	return false
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusDone       JobStatus = "DONE"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// InputAttributes holds the kind-specific request payload.
type InputAttributes struct {
	ImageKey    string   `json:"image_key,omitempty"`
	ImageMIME   string   `json:"image_mime,omitempty"`
	FullName    string   `json:"full_name,omitempty"`
	BirthDate   string   `json:"birth_date,omitempty"`
	BirthTime   string   `json:"birth_time,omitempty"`
	BirthPlace  string   `json:"birth_place,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	Preferences []string `json:"preferences,omitempty"`
}

// Job is one submitted reading request and its lifecycle record.
type Job struct {
	ID             string
	Kind           ReadingKind
	Status         JobStatus
	Input          InputAttributes
	ConsentToStore bool
	ClientKey      string
	OriginCountry  string
	RawModelOutput string
	Result         *Result
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	ExpiresAt      time.Time
}

// Completion is the write-once payload recorded when a job reaches DONE.
type Completion struct {
	Result         *Result
	RawModelOutput string
	CompletedAt    time.Time
	// ExpiresAt replaces the stored expiry when non-nil.
	ExpiresAt *time.Time
}

// ExpiredJob identifies a job removed by the retention sweep.
type ExpiredJob struct {
	ID       string
	ImageKey string
}

// Retention holds the default lifetime of each reading kind and the shorter
// lifetime applied to completed jobs stored without consent.
type Retention struct {
	Palm       time.Duration
	Numerology time.Duration
	Astrology  time.Duration
	NoConsent  time.Duration
}

// For returns the default TTL of kind.
func (r Retention) For(kind ReadingKind) time.Duration {
	switch kind {
	case KindNumerology:
		return r.Numerology
	case KindAstrology:
		return r.Astrology
	default:
		return r.Palm
	}
}
