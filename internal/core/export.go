package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/catalogxlate/internal/batch"
	"github.com/JonMunkholm/catalogxlate/internal/catalog"
	"github.com/JonMunkholm/catalogxlate/internal/csvcodec"
)

// runExport writes the channel's products to a CSV in the blob store and
// returns its URL. A product whose overrides cannot be read keeps its row,
// with only the id filled in, so row order matches the channel listing.
func (s *Service) runExport(ctx context.Context, gw Gateway, job TranslationJob, defaultLocale string, logger *slog.Logger) (string, error) {
	ids, err := gw.ChannelProductIDs(ctx, job.ChannelID)
	if err != nil {
		return "", fmt.Errorf("list channel products: %w", err)
	}
	logger.Info("export started", "products", len(ids), "default_locale", defaultLocale)

	records, err := batch.Run(ctx, ids, func(ctx context.Context, id int64) (csvcodec.Record, error) {
		p, err := gw.ProductLocales(ctx, id, job.ChannelID, defaultLocale, job.Locale)
		if err != nil {
			return csvcodec.Record{}, err
		}
		return catalog.ToRecord(id, p, defaultLocale, job.Locale), nil
	}, s.cfg.batchOptions())

	if agg, ok := batch.AsError(err); ok {
		for _, f := range agg.Failures {
			records[f.Index] = csvcodec.NewRecord(ids[f.Index])
			logger.Warn("product export failed", "product_id", ids[f.Index], "error", f.Err)
		}
	} else if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}

	content := csvcodec.Stringify(records, defaultLocale, job.Locale)
	url, err := s.blobs.Put(ctx, ExportPath(job), []byte(content))
	if err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}
	return url, nil
}
