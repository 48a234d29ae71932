package datastore

import (
	"context"
	"errors"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/models"
)

// ExportHistory writes every cached scan of repository, commit scans first,
// to w as a zstd compressed parquet file. It returns the number of rows.
func (s *ScanCacheStore) ExportHistory(ctx context.Context, repository string, w io.Writer) (int, error) {
	var records []ParquetScanRecord
	for _, mode := range []models.ScanMode{models.ScanModeCommit, models.ScanModeRepo} {
		if err := s.checkCancellation(ctx, "export history"); err != nil {
			return 0, err
		}
		entries, err := s.ListScans(mode, repository)
		if err != nil {
			return 0, err
		}
		for _, entry := range entries {
			records = append(records, NewParquetScanRecord(entry))
		}
	}

	writer := parquet.NewGenericWriter[ParquetScanRecord](w, parquet.Compression(&parquet.Zstd))
	if len(records) > 0 {
		if _, err := writer.Write(records); err != nil {
			_ = writer.Close()
			return 0, common.WrapError(err, "failed to write scan history rows")
		}
	}
	if err := writer.Close(); err != nil {
		return 0, common.WrapError(err, "failed to finalize scan history parquet")
	}

	s.logger.Info().Str("repository", repository).Int("records_written", len(records)).Msg("Exported scan history")
	return len(records), nil
}

// ReadHistory loads rows previously written by ExportHistory
func ReadHistory(ctx context.Context, r io.ReaderAt) ([]ParquetScanRecord, error) {
	reader := parquet.NewGenericReader[ParquetScanRecord](r)
	defer reader.Close()

	records := make([]ParquetScanRecord, 0, reader.NumRows())
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch := make([]ParquetScanRecord, 100)
		n, err := reader.Read(batch)
		records = append(records, batch[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, common.WrapError(err, "failed to read scan history rows")
		}
	}
	return records, nil
}

func (s *ScanCacheStore) checkCancellation(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		s.logger.Info().Err(err).Str("operation", operation).Msg("Context cancelled")
		return common.WrapErrorf(err, "%s cancelled", operation)
	}
	return nil
}
