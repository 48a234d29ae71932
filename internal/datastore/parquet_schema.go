package datastore

import (
	"time"

	"github.com/vulnzap/vulnzap-client/internal/models"
)

// ParquetScanRecord is one cached scan flattened for columnar export.
// Timestamps are Unix milliseconds; optional fields are nil when unset.
type ParquetScanRecord struct {
	JobID             string  `parquet:"job_id"`
	Mode              string  `parquet:"mode"`
	Repository        string  `parquet:"repository"`
	Branch            *string `parquet:"branch,optional"`
	CommitHash        *string `parquet:"commit_hash,optional"`
	Status            string  `parquet:"status"`
	Resolved          bool    `parquet:"resolved"`
	Timestamp         int64   `parquet:"timestamp"`
	ResolvedTimestamp *int64  `parquet:"resolved_timestamp,optional"`
	ResultsJSON       *string `parquet:"results_json,optional"`
}

// TimePtrToUnixMilliOptional converts a time to Unix milliseconds, nil for zero
func TimePtrToUnixMilliOptional(t *time.Time) *int64 {
	if t == nil || t.IsZero() {
		return nil
	}
	millis := t.UnixMilli()
	return &millis
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NewParquetScanRecord flattens a cache entry
func NewParquetScanRecord(entry models.CacheEntry) ParquetScanRecord {
	var results *string
	if len(entry.Results) > 0 {
		results = optionalString(string(entry.Results))
	}
	return ParquetScanRecord{
		JobID:             entry.JobID,
		Mode:              string(entry.Mode),
		Repository:        entry.Repository,
		Branch:            optionalString(entry.Branch),
		CommitHash:        optionalString(entry.CommitHash),
		Status:            entry.Status,
		Resolved:          entry.Resolved,
		Timestamp:         entry.Timestamp.UnixMilli(),
		ResolvedTimestamp: TimePtrToUnixMilliOptional(entry.ResolvedTimestamp),
		ResultsJSON:       results,
	}
}
