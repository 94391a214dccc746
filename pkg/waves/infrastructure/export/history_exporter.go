// Package export writes the history of finished jobs to parquet files in
// object storage.
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/waves/pkg/waves/adapter/storage"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/domain/repository"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

const moduleName = "export"

// ContentType is the media type of the uploaded files.
const ContentType = "application/vnd.apache.parquet"

// HistoryRow is one history entry of one job.
type HistoryRow struct {
	JobID       string `parquet:"name=job_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	Slug        string `parquet:"name=slug,type=BYTE_ARRAY,convertedtype=UTF8"`
	Title       string `parquet:"name=title,type=BYTE_ARRAY,convertedtype=UTF8"`
	Status      int32  `parquet:"name=status,type=INT32"`
	StatusName  string `parquet:"name=status_name,type=BYTE_ARRAY,convertedtype=UTF8,encoding=PLAIN_DICTIONARY"`
	Message     string `parquet:"name=message,type=BYTE_ARRAY,convertedtype=UTF8"`
	TimestampMs int64  `parquet:"name=timestamp_ms,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	IsAdmin     bool   `parquet:"name=is_admin,type=BOOLEAN"`
}

// Settings configures the exporter.
type Settings struct {
	StorageRef string
	// Bucket overrides the bucket_name of the storage connection.
	Bucket string
	Prefix string
	// Compression is UNCOMPRESSED (or NONE), SNAPPY, GZIP or ZSTD.
	Compression string
	// Limit caps the number of jobs per export; 0 exports all.
	Limit int
}

// Result describes one export.
type Result struct {
	Object string
	Jobs   int
	Rows   int
	Bytes  int
}

// Option customizes a HistoryExporter.
type Option func(*HistoryExporter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *HistoryExporter) { e.now = now }
}

// HistoryExporter flattens the history of final jobs into one parquet file.
type HistoryExporter struct {
	repo     repository.JobRepository
	resolver storage.StorageConnectionResolver
	settings Settings
	codec    parquet.CompressionCodec
	now      func() time.Time
}

// NewHistoryExporter validates settings.
func NewHistoryExporter(repo repository.JobRepository, resolver storage.StorageConnectionResolver, settings Settings, opts ...Option) (*HistoryExporter, error) {
	if settings.StorageRef == "" {
		return nil, exception.NewWavesError(moduleName, "history export requires a storage_ref", nil)
	}
	if settings.Compression == "" {
		settings.Compression = "SNAPPY"
	}
	codec, err := compressionCodec(settings.Compression)
	if err != nil {
		return nil, exception.NewWavesError(moduleName, "invalid export compression", err)
	}
	e := &HistoryExporter{
		repo:     repo,
		resolver: resolver,
		settings: settings,
		codec:    codec,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Rows flattens the history of jobs, job by job in history order.
func Rows(jobs []*model.Job) []HistoryRow {
	var rows []HistoryRow
	for _, job := range jobs {
		for _, h := range job.History {
			rows = append(rows, HistoryRow{
				JobID:       job.ID,
				Slug:        job.Slug,
				Title:       job.Title,
				Status:      int32(h.Status),
				StatusName:  h.Status.String(),
				Message:     h.Message,
				TimestampMs: h.Timestamp.UnixMilli(),
				IsAdmin:     h.IsAdmin,
			})
		}
	}
	return rows
}

// Export writes the history of every job in a final status and uploads it
// under <prefix>/dt=<day>/. Nothing is uploaded when there is no row.
func (e *HistoryExporter) Export(ctx context.Context) (*Result, error) {
	jobs, err := e.repo.FindJobsByStatus(ctx, e.settings.Limit, model.FinalStatuses...)
	if err != nil {
		return nil, exception.NewWavesError(moduleName, "failed to load finished jobs", err)
	}
	rows := Rows(jobs)
	result := &Result{Jobs: len(jobs), Rows: len(rows)}
	if len(rows) == 0 {
		logger.Infof("History export: no finished job history to export.")
		return result, nil
	}

	data, err := e.encode(rows)
	if err != nil {
		return nil, err
	}
	result.Bytes = len(data)

	conn, err := e.resolver.ResolveStorageConnection(ctx, e.settings.StorageRef)
	if err != nil {
		return nil, exception.NewWavesError(moduleName, fmt.Sprintf("failed to resolve storage '%s'", e.settings.StorageRef), err)
	}

	now := e.now().UTC()
	result.Object = path.Join(
		e.settings.Prefix,
		"dt="+now.Format("2006-01-02"),
		fmt.Sprintf("history_%s_%s.parquet", now.Format("20060102150405"), uuid.NewString()[:8]),
	)
	if err := conn.Upload(ctx, e.settings.Bucket, result.Object, bytes.NewReader(data), ContentType); err != nil {
		return nil, exception.NewWavesError(moduleName, fmt.Sprintf("failed to upload %s", result.Object), err)
	}
	logger.Infof("History export: %d rows of %d jobs uploaded to %s/%s (%d bytes).",
		result.Rows, result.Jobs, e.settings.StorageRef, result.Object, result.Bytes)
	return result, nil
}

// encode renders rows as one parquet file. Panics of the writer are turned
// into errors.
func (e *HistoryExporter) encode(rows []HistoryRow) ([]byte, error) {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(HistoryRow), 1)
	if err != nil {
		return nil, exception.NewWavesError(moduleName, "failed to create parquet writer", err)
	}
	pw.CompressionType = e.codec

	var errs error
	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("row %d (job %s): %w", i, rows[i].JobID, err))
		}
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				errs = multierror.Append(errs, fmt.Errorf("parquet writer panicked during WriteStop: %v", r))
			}
		}()
		if err := pw.WriteStop(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}()
	if errs != nil {
		return nil, exception.NewWavesError(moduleName, "failed to encode history", errs)
	}
	return buf.Bytes(), nil
}

// ReadFile reads the rows of an exported file.
func ReadFile(filePath string) ([]HistoryRow, error) {
	fr, err := local.NewLocalFileReader(filePath)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(HistoryRow), 1)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()

	rows := make([]HistoryRow, pr.GetNumRows())
	if err := pr.Read(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "ZSTD":
		return parquet.CompressionCodec_ZSTD, nil
	case "NONE", "UNCOMPRESSED":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	}
	return 0, fmt.Errorf("unsupported compression type: %s", name)
}
