package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/catalogxlate/internal/core"
)

const jobColumns = `id, store_hash, job_type, status, channel_id, locale, default_locale,
	file_url, error, created_at, updated_at`

// Jobs implements core.JobStore.
type Jobs struct {
	db  DBTX
	now func() time.Time
}

// NewJobs returns a job store over db.
func NewJobs(db DBTX) *Jobs {
	return &Jobs{db: db, now: time.Now}
}

var _ core.JobStore = (*Jobs)(nil)

// CreateJob inserts a pending job.
func (s *Jobs) CreateJob(ctx context.Context, nj core.NewJob) (core.TranslationJob, error) {
	query := `INSERT INTO translation_jobs
		(id, store_hash, job_type, status, channel_id, locale, default_locale, file_url, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7, $8, $8)
		RETURNING ` + jobColumns

	row := s.db.QueryRow(ctx, query,
		uuid.New(), nj.StoreHash, string(nj.JobType), nj.ChannelID, nj.Locale, nj.DefaultLocale, nj.FileURL, s.now().UTC(),
	)
	job, err := scanJob(row)
	if err != nil {
		return core.TranslationJob{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetJob returns core.ErrJobNotFound for an unknown id.
func (s *Jobs) GetJob(ctx context.Context, id uuid.UUID) (core.TranslationJob, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM translation_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.TranslationJob{}, core.ErrJobNotFound
	}
	if err != nil {
		return core.TranslationJob{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// ListJobs returns jobs newest first.
func (s *Jobs) ListJobs(ctx context.Context, f core.JobFilter) ([]core.TranslationJob, error) {
	var wb whereBuilder
	wb.Add("store_hash", f.StoreHash)
	wb.Add("status", string(f.Status))
	where, args := wb.Build()

	query := `SELECT ` + jobColumns + ` FROM translation_jobs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, wb.NextArgIndex())
	args = append(args, f.Limit)

	return s.queryJobs(ctx, query, args...)
}

// ListPendingJobs returns pending jobs oldest first.
func (s *Jobs) ListPendingJobs(ctx context.Context, storeHash string) ([]core.TranslationJob, error) {
	wb := whereBuilder{conds: []string{"status = 'pending'"}}
	wb.Add("store_hash", storeHash)
	where, args := wb.Build()

	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM translation_jobs`+where+` ORDER BY created_at, id`, args...)
}

func (s *Jobs) queryJobs(ctx context.Context, query string, args ...any) ([]core.TranslationJob, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]core.TranslationJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	return jobs, nil
}

// ClaimJob moves a pending job to processing. Exactly one concurrent caller
// sees true.
func (s *Jobs) ClaimJob(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE translation_jobs SET status = 'processing', updated_at = $2
		WHERE id = $1 AND status = 'pending'`,
		id, s.now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("claim job %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteJob marks a processing job completed.
func (s *Jobs) CompleteJob(ctx context.Context, id uuid.UUID, fileURL *string) error {
	return s.finish(ctx, id,
		`UPDATE translation_jobs SET status = 'completed', file_url = COALESCE($2, file_url), error = NULL, updated_at = $3
		WHERE id = $1 AND status = 'processing'`,
		fileURL,
	)
}

// FailJob marks a processing job failed with message.
func (s *Jobs) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	return s.finish(ctx, id,
		`UPDATE translation_jobs SET status = 'failed', error = $2, updated_at = $3
		WHERE id = $1 AND status = 'processing'`,
		message,
	)
}

func (s *Jobs) finish(ctx context.Context, id uuid.UUID, query string, value any) error {
	tag, err := s.db.Exec(ctx, query, id, value, s.now().UTC())
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish job %s: %w", id, core.ErrInvalidTransition)
	}
	return nil
}

// InsertErrors bulk-loads error rows with COPY.
func (s *Jobs) InsertErrors(ctx context.Context, rows []core.TranslationError) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"translation_errors"},
		[]string{"id", "job_id", "entity_id", "line_number", "error_type", "error_message", "raw_data", "created_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			created := r.CreatedAt
			if created.IsZero() {
				created = s.now()
			}
			return []any{r.ID, r.JobID, r.EntityID, int32(r.LineNumber), string(r.ErrorType), r.ErrorMessage, r.RawData, created.UTC()}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy %d error rows: %w", len(rows), err)
	}
	return nil
}

// ListErrors returns a job's error rows in line order.
func (s *Jobs) ListErrors(ctx context.Context, jobID uuid.UUID) ([]core.TranslationError, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, job_id, entity_id, line_number, error_type, error_message, raw_data, created_at
		FROM translation_errors WHERE job_id = $1 ORDER BY line_number, created_at`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query errors: %w", err)
	}
	defer rows.Close()

	out := make([]core.TranslationError, 0)
	for rows.Next() {
		var (
			e       core.TranslationError
			line    int32
			errType string
		)
		if err := rows.Scan(&e.ID, &e.JobID, &e.EntityID, &line, &errType, &e.ErrorMessage, &e.RawData, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error row: %w", err)
		}
		e.LineNumber = int(line)
		e.ErrorType = core.ErrorType(errType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query errors: %w", err)
	}
	return out, nil
}

func scanJob(row pgx.Row) (core.TranslationJob, error) {
	var (
		j               core.TranslationJob
		jobType, status string
	)
	err := row.Scan(&j.ID, &j.StoreHash, &jobType, &status, &j.ChannelID, &j.Locale, &j.DefaultLocale,
		&j.FileURL, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return core.TranslationJob{}, err
	}
	j.JobType = core.JobType(jobType)
	j.Status = core.JobStatus(status)
	return j, nil
}
