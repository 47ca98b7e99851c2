package models

import "time"

// SyntheticFile is a generated file waiting in the upload scratch directory
type SyntheticFile struct {
	Name      string
	LocalPath string
	Size      int64
	Digest    string // hex blake2b-256 of the content
}

// ObjectRecord is an object as reported by a bucket listing
type ObjectRecord struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	ETag         string
}

// Run statuses
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Operation outcomes
const (
	OutcomeOK     = "ok"
	OutcomeWarn   = "warn"
	OutcomeFailed = "failed"
)

type Run struct {
	ID              string
	Endpoint        string
	Bucket          string
	StartedAt       time.Time
	FinishedAt      time.Time
	Status          string
	FilesGenerated  int
	FilesUploaded   int
	FilesDownloaded int
}

// Operation is a single storage call issued during a run
type Operation struct {
	RunID    string
	Seq      int
	Name     string
	Key      string
	Size     int64
	Outcome  string
	Error    string
	At       time.Time
	Duration time.Duration
}
