package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalogxlate/internal/catalog"
	"github.com/JonMunkholm/catalogxlate/internal/notify"
)

// JobType is the direction of a translation job.
type JobType string

const (
	JobImport JobType = "import"
	JobExport JobType = "export"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool { return t == JobImport || t == JobExport }

// JobStatus is the lifecycle state of a job. Transitions only move forward:
// pending -> processing -> completed | failed.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// ErrorType classifies a per-record import failure.
type ErrorType string

const (
	ErrorParse      ErrorType = "parse_error"
	ErrorValidation ErrorType = "validation_error"
	ErrorAPI        ErrorType = "api_error"
	ErrorUnknown    ErrorType = "unknown"
)

// TranslationJob is one import or export request for a store, channel and locale.
type TranslationJob struct {
	ID        uuid.UUID `json:"id"`
	StoreHash string    `json:"storeHash"`
	JobType   JobType   `json:"jobType"`
	Status    JobStatus `json:"status"`
	ChannelID int64     `json:"channelId"`
	Locale    string    `json:"locale"`
	// DefaultLocale is the reference locale. Empty means resolve it when the
	// job runs.
	DefaultLocale string    `json:"defaultLocale,omitempty"`
	FileURL       *string   `json:"fileUrl,omitempty"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TranslationError is a record that failed during an import.
type TranslationError struct {
	ID           uuid.UUID `json:"id"`
	JobID        uuid.UUID `json:"jobId"`
	EntityID     *int64    `json:"entityId,omitempty"`
	LineNumber   int       `json:"lineNumber"`
	ErrorType    ErrorType `json:"errorType"`
	ErrorMessage string    `json:"errorMessage"`
	RawData      string    `json:"rawData"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewJob holds the fields a caller supplies when creating a job.
type NewJob struct {
	StoreHash     string
	JobType       JobType
	ChannelID     int64
	Locale        string
	DefaultLocale string
	FileURL       *string
}

// JobFilter narrows ListJobs. Zero fields do not filter.
type JobFilter struct {
	StoreHash string
	Status    JobStatus
	Limit     int
}

var (
	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a status update would move a
	// job backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrNoCredentials is returned when a store has no access token.
	ErrNoCredentials = errors.New("no credentials for store")

	// ErrSameLocale is returned when a job's reference locale resolves to
	// the locale being translated.
	ErrSameLocale = errors.New("default locale equals target locale")
)

// JobStore persists jobs and their error rows.
type JobStore interface {
	CreateJob(ctx context.Context, job NewJob) (TranslationJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (TranslationJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]TranslationJob, error)
	// ListPendingJobs returns pending jobs oldest first; an empty storeHash
	// means every store.
	ListPendingJobs(ctx context.Context, storeHash string) ([]TranslationJob, error)
	// ClaimJob moves a job from pending to processing. It returns false,
	// without error, when the job was not pending.
	ClaimJob(ctx context.Context, id uuid.UUID) (bool, error)
	// CompleteJob and FailJob move a processing job to a terminal state and
	// return ErrInvalidTransition for a job that is not processing.
	CompleteJob(ctx context.Context, id uuid.UUID, fileURL *string) error
	FailJob(ctx context.Context, id uuid.UUID, message string) error
	InsertErrors(ctx context.Context, rows []TranslationError) error
	ListErrors(ctx context.Context, jobID uuid.UUID) ([]TranslationError, error)
}

// CredentialStore resolves a store's API access token.
type CredentialStore interface {
	// StoreToken returns ErrNoCredentials when the store is unknown.
	StoreToken(ctx context.Context, storeHash string) (string, error)
}

// BlobStore holds import and export files.
type BlobStore interface {
	Put(ctx context.Context, path string, content []byte) (string, error)
	Get(ctx context.Context, url string) ([]byte, error)
}

// Gateway is the upstream catalog API of one store.
type Gateway interface {
	ChannelProductIDs(ctx context.Context, channelID int64) ([]int64, error)
	ProductLocales(ctx context.Context, productID, channelID int64, defaultLocale, locale string) (catalog.ProductLocales, error)
	UpdateProduct(ctx context.Context, upd catalog.ProductUpdate) error
	DefaultLocale(ctx context.Context, channelID int64) (string, error)
}

// GatewayFactory builds a Gateway scoped to one store.
type GatewayFactory func(storeHash, accessToken string) Gateway

// Notifier is told about jobs reaching a terminal state.
type Notifier interface {
	Publish(ctx context.Context, ev notify.Event) error
}

// RunSummary counts the outcome of one orchestration pass.
type RunSummary struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
