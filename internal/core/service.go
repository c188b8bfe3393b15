package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalogxlate/internal/batch"
	"github.com/JonMunkholm/catalogxlate/internal/clock"
	"github.com/JonMunkholm/catalogxlate/internal/logging"
	"github.com/JonMunkholm/catalogxlate/internal/notify"
)

// DefaultJobTimeout bounds a single job once it is claimed.
const DefaultJobTimeout = 30 * time.Minute

// FailurePolicy decides what record failures mean for the job as a whole.
type FailurePolicy int

const (
	// RecordAndContinue stores each failed record and completes the job.
	RecordAndContinue FailurePolicy = iota
	// FailJob stores each failed record and fails the job.
	FailJob
)

func (p FailurePolicy) String() string {
	if p == FailJob {
		return "fail_job"
	}
	return "record_and_continue"
}

// PipelineConfig is the immutable tuning of the job pipeline.
type PipelineConfig struct {
	BatchSize         int
	RequestsPerSecond float64
	// DefaultLocale is the last-resort reference locale when neither the job
	// nor the channel names one.
	DefaultLocale string
	JobTimeout    time.Duration
	ImportPolicy  FailurePolicy
	Clock         clock.Clock
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	return c
}

func (c PipelineConfig) batchOptions() batch.Options {
	return batch.Options{
		BatchSize:   c.BatchSize,
		MinDuration: batch.MinDurationFor(c.BatchSize, c.RequestsPerSecond),
		Clock:       c.Clock,
	}
}

// Deps are the collaborators of a Service. Notifier and Limiter are
// optional.
type Deps struct {
	Jobs        JobStore
	Credentials CredentialStore
	Blobs       BlobStore
	Gateways    GatewayFactory
	Notifier    Notifier
	Limiter     *RunLimiter
}

// Service runs translation jobs and answers job queries.
type Service struct {
	jobs     JobStore
	creds    CredentialStore
	blobs    BlobStore
	gateways GatewayFactory
	notifier Notifier
	limiter  *RunLimiter
	cfg      PipelineConfig
}

// NewService creates a new Service instance.
func NewService(deps Deps, cfg PipelineConfig) (*Service, error) {
	switch {
	case deps.Jobs == nil:
		return nil, errors.New("job store is required")
	case deps.Credentials == nil:
		return nil, errors.New("credential store is required")
	case deps.Blobs == nil:
		return nil, errors.New("blob store is required")
	case deps.Gateways == nil:
		return nil, errors.New("gateway factory is required")
	}

	s := &Service{
		jobs:     deps.Jobs,
		creds:    deps.Credentials,
		blobs:    deps.Blobs,
		gateways: deps.Gateways,
		notifier: deps.Notifier,
		limiter:  deps.Limiter,
		cfg:      cfg.withDefaults(),
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.limiter == nil {
		s.limiter = NewRunLimiter(DefaultMaxConcurrentRuns, 0)
	}
	return s, nil
}

// Limiter exposes the run limiter for health reporting and shutdown.
func (s *Service) Limiter() *RunLimiter { return s.limiter }

// jobOutcome is the result of one job within a pass.
type jobOutcome int

const (
	outcomeSkipped jobOutcome = iota
	outcomeCompleted
	outcomeFailed
)

// ProcessPending runs one orchestration pass over the pending jobs of
// storeHash, or of every store when storeHash is nil. Jobs run one after
// another. A job lost to another worker's claim is skipped.
//
// Only one pass runs per process at a time; a second caller gets
// ErrRunInProgress once the limiter's wait expires.
func (s *Service) ProcessPending(ctx context.Context, storeHash *string) (RunSummary, error) {
	var summary RunSummary

	if err := s.limiter.Acquire(ctx); err != nil {
		return summary, err
	}
	defer s.limiter.Release()

	store := ""
	if storeHash != nil {
		store = *storeHash
	}
	logger := logging.WithFields(ctx, "store_hash", store)

	jobs, err := s.jobs.ListPendingJobs(ctx, store)
	if err != nil {
		return summary, fmt.Errorf("list pending jobs: %w", err)
	}
	summary.Pending = len(jobs)
	if len(jobs) == 0 {
		logger.Debug("no pending jobs")
		return summary, nil
	}

	start := time.Now()
	logger.Info("processing pending jobs", "pending", len(jobs))

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		switch s.processJob(ctx, job) {
		case outcomeCompleted:
			summary.Completed++
		case outcomeFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	logger.Info("pending jobs processed",
		"completed", summary.Completed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return summary, nil
}

// processJob claims and runs one job. Once claimed, the job runs on a
// context detached from ctx so a cancelled trigger cannot strand it in
// processing; JobTimeout is its only deadline.
func (s *Service) processJob(ctx context.Context, job TranslationJob) jobOutcome {
	logger := logging.WithJob(ctx, job.ID.String(), job.StoreHash, string(job.JobType))

	claimed, err := s.jobs.ClaimJob(ctx, job.ID)
	if err != nil {
		logger.Error("claim job failed", "error", err)
		return outcomeSkipped
	}
	if !claimed {
		logger.Info("job claimed elsewhere, skipping")
		return outcomeSkipped
	}

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	logger.Info("job started", "channel_id", job.ChannelID, "locale", job.Locale)

	res, runErr := s.runJob(jobCtx, job, logger)

	ev := notify.Event{
		JobID:      job.ID.String(),
		StoreHash:  job.StoreHash,
		JobType:    string(job.JobType),
		ErrorCount: res.errorCount,
		FinishedAt: s.cfg.Clock.Now(),
	}
	outcome := outcomeCompleted

	if runErr != nil {
		outcome = outcomeFailed
		ev.Status = string(StatusFailed)
		ev.Error = runErr.Error()
		logger.Error("job failed", "error", runErr, "duration_ms", time.Since(start).Milliseconds())
		if err := s.jobs.FailJob(jobCtx, job.ID, runErr.Error()); err != nil {
			logger.Error("persist failed status", "error", err)
		}
	} else {
		ev.Status = string(StatusCompleted)
		if res.fileURL != nil {
			ev.FileURL = *res.fileURL
		}
		logger.Info("job completed",
			"record_errors", res.errorCount,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if err := s.jobs.CompleteJob(jobCtx, job.ID, res.fileURL); err != nil {
			logger.Error("persist completed status", "error", err)
			if errors.Is(err, ErrInvalidTransition) {
				return outcomeSkipped
			}
			msg := fmt.Sprintf("persist completed status: %v", err)
			if err := s.jobs.FailJob(jobCtx, job.ID, msg); err != nil {
				logger.Error("job stranded in processing", "error", err)
			}
			outcome = outcomeFailed
			ev.Status = string(StatusFailed)
			ev.Error = msg
			ev.FileURL = ""
		}
	}

	if err := s.notifier.Publish(jobCtx, ev); err != nil {
		logger.Warn("publish job event failed", "error", err)
	}
	return outcome
}

// jobResult is what a handler hands back for the terminal update.
type jobResult struct {
	fileURL    *string
	errorCount int
}

func (s *Service) runJob(ctx context.Context, job TranslationJob, logger *slog.Logger) (jobResult, error) {
	token, err := s.creds.StoreToken(ctx, job.StoreHash)
	if err != nil {
		return jobResult{}, fmt.Errorf("resolve credentials: %w", err)
	}
	gw := s.gateways(job.StoreHash, token)

	defaultLocale, err := s.resolveDefaultLocale(ctx, gw, job, logger)
	if err != nil {
		return jobResult{}, err
	}

	switch job.JobType {
	case JobImport:
		n, err := s.runImport(ctx, gw, job, defaultLocale, logger)
		return jobResult{errorCount: n}, err
	case JobExport:
		url, err := s.runExport(ctx, gw, job, defaultLocale, logger)
		if err != nil {
			return jobResult{}, err
		}
		return jobResult{fileURL: &url}, nil
	default:
		return jobResult{}, fmt.Errorf("%w: unknown job type %q", ErrInvalidRequest, job.JobType)
	}
}

// resolveDefaultLocale picks the reference locale: the job's own, then the
// channel default reported upstream, then the configured fallback.
// The result must differ from the job's locale: both columns of a field
// would otherwise share one header and the reference text would be lost.
func (s *Service) resolveDefaultLocale(ctx context.Context, gw Gateway, job TranslationJob, logger *slog.Logger) (string, error) {
	locale, err := s.lookupDefaultLocale(ctx, gw, job, logger)
	if err != nil {
		return "", fmt.Errorf("resolve default locale for channel %d: %w", job.ChannelID, err)
	}
	if strings.EqualFold(locale, job.Locale) {
		return "", fmt.Errorf("resolve default locale for channel %d: %w (%s)", job.ChannelID, ErrSameLocale, locale)
	}
	return locale, nil
}

func (s *Service) lookupDefaultLocale(ctx context.Context, gw Gateway, job TranslationJob, logger *slog.Logger) (string, error) {
	if job.DefaultLocale != "" {
		return job.DefaultLocale, nil
	}
	locale, err := gw.DefaultLocale(ctx, job.ChannelID)
	if err == nil && locale != "" {
		return locale, nil
	}
	if s.cfg.DefaultLocale != "" {
		logger.Warn("using configured default locale", "locale", s.cfg.DefaultLocale, "error", err)
		return s.cfg.DefaultLocale, nil
	}
	if err == nil {
		err = errors.New("channel has no default locale")
	}
	return "", err
}

// CreateExportJob queues an export.
func (s *Service) CreateExportJob(ctx context.Context, job NewJob) (TranslationJob, error) {
	job.JobType = JobExport
	job.FileURL = nil
	return s.createJob(ctx, job)
}

// CreateImportJob stores content and queues an import of it.
func (s *Service) CreateImportJob(ctx context.Context, job NewJob, content []byte) (TranslationJob, error) {
	job.JobType = JobImport
	if len(content) == 0 {
		return TranslationJob{}, fmt.Errorf("%w: empty file", ErrInvalidRequest)
	}
	// Validate before storing so a bad request leaves no orphan upload.
	probe := job
	placeholder := "pending-upload"
	probe.FileURL = &placeholder
	if err := ValidateNewJob(probe).Err(); err != nil {
		return TranslationJob{}, err
	}

	url, err := s.blobs.Put(ctx, ImportPath(job.StoreHash, uuid.New()), content)
	if err != nil {
		return TranslationJob{}, fmt.Errorf("store import file: %w", err)
	}
	job.FileURL = &url
	return s.createJob(ctx, job)
}

func (s *Service) createJob(ctx context.Context, job NewJob) (TranslationJob, error) {
	if err := ValidateNewJob(job).Err(); err != nil {
		return TranslationJob{}, err
	}
	created, err := s.jobs.CreateJob(ctx, job)
	if err != nil {
		return TranslationJob{}, fmt.Errorf("create job: %w", err)
	}
	logging.WithJob(ctx, created.ID.String(), created.StoreHash, string(created.JobType)).
		Info("job queued", "channel_id", created.ChannelID, "locale", created.Locale)
	return created, nil
}

// GetJob returns one job.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (TranslationJob, error) {
	return s.jobs.GetJob(ctx, id)
}

// ListJobs returns jobs newest first.
func (s *Service) ListJobs(ctx context.Context, filter JobFilter) ([]TranslationJob, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.jobs.ListJobs(ctx, filter)
}

// ListJobErrors returns the failed records of a job in line order.
func (s *Service) ListJobErrors(ctx context.Context, jobID uuid.UUID) ([]TranslationError, error) {
	if _, err := s.jobs.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.jobs.ListErrors(ctx, jobID)
}

// ImportPath is the blob path of an uploaded import file.
func ImportPath(storeHash string, id uuid.UUID) string {
	return fmt.Sprintf("imports/%s/%s.csv", storeHash, id)
}

// ExportPath is the blob path of a job's export file.
func ExportPath(job TranslationJob) string {
	return fmt.Sprintf("exports/%s/%s.csv", job.StoreHash, job.ID)
}
