package core

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalogxlate/internal/batch"
	"github.com/JonMunkholm/catalogxlate/internal/catalog"
	"github.com/JonMunkholm/catalogxlate/internal/csvcodec"
)

// runImport applies an uploaded CSV to the store. Every row that cannot be
// parsed, mapped or written becomes a TranslationError; whether those rows
// fail the job is up to the import FailurePolicy. It returns the number of
// error rows stored.
func (s *Service) runImport(ctx context.Context, gw Gateway, job TranslationJob, defaultLocale string, logger *slog.Logger) (int, error) {
	if job.FileURL == nil || *job.FileURL == "" {
		return 0, errors.New("source file: import job has no file url")
	}
	data, err := s.blobs.Get(ctx, *job.FileURL)
	if err != nil {
		return 0, fmt.Errorf("fetch source file: %w", err)
	}

	parsed, err := csvcodec.Parse(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("parse import: %w", err)
	}
	logger.Info("import parsed",
		"records", len(parsed.Records),
		"row_errors", len(parsed.RowErrors),
		"default_locale", defaultLocale,
	)

	now := s.cfg.Clock.Now()
	rows := make([]TranslationError, 0, len(parsed.RowErrors))
	for _, re := range parsed.RowErrors {
		rows = append(rows, newErrorRow(job.ID, nil, re.Line, re, re.Raw, now))
	}

	_, runErr := batch.Run(ctx, parsed.Records, func(ctx context.Context, rec csvcodec.Record) (struct{}, error) {
		upd, err := catalog.FromRecord(rec, job.ChannelID, defaultLocale, job.Locale)
		if err != nil {
			return struct{}{}, err
		}
		if upd.Empty() {
			return struct{}{}, nil
		}
		return struct{}{}, gw.UpdateProduct(ctx, upd)
	}, s.cfg.batchOptions())

	var policyErr error
	if agg, ok := batch.AsError(runErr); ok {
		now = s.cfg.Clock.Now()
		for _, f := range agg.Failures {
			rec := parsed.Records[f.Index]
			id := rec.EntityID
			rows = append(rows, newErrorRow(job.ID, &id, rec.Line, f.Err, rec.Raw(parsed.Headers), now))
		}
		if s.cfg.ImportPolicy == FailJob {
			policyErr = fmt.Errorf("import: %w", agg)
		}
	} else if runErr != nil {
		return 0, fmt.Errorf("import: %w", runErr)
	}

	if len(rows) > 0 {
		slices.SortStableFunc(rows, func(a, b TranslationError) int {
			return cmp.Compare(a.LineNumber, b.LineNumber)
		})
		if err := s.jobs.InsertErrors(ctx, rows); err != nil {
			return len(rows), fmt.Errorf("store record errors: %w", err)
		}
		logger.Warn("import finished with record errors", "errors", len(rows), "policy", s.cfg.ImportPolicy.String())
	}

	return len(rows), policyErr
}

func newErrorRow(jobID uuid.UUID, entityID *int64, line int, err error, raw string, now time.Time) TranslationError {
	return TranslationError{
		ID:           uuid.New(),
		JobID:        jobID,
		EntityID:     entityID,
		LineNumber:   line,
		ErrorType:    ClassifyError(err),
		ErrorMessage: err.Error(),
		RawData:      raw,
		CreatedAt:    now,
	}
}
