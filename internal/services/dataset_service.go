package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"emspulse/internal/config"
	"emspulse/internal/dataset"
	apperrors "emspulse/internal/errors"
	"emspulse/internal/exporter"
	"emspulse/internal/infrastructure"
	"emspulse/internal/loader"
)

// EventPublisher pushes dataset lifecycle events to connected clients. The
// WebSocket hub implements it; a nil publisher disables events.
type EventPublisher interface {
	Publish(eventType string, payload any)
}

// Lifecycle event types sent over the hub.
const (
	EventLoadStarted  = "dataset:load_started"
	EventLoadComplete = "dataset:load_complete"
	EventLoadFailed   = "dataset:load_failed"
)

// DatasetService owns the loaded dataset and runs every pipeline operation
// against it. A load replaces the published table atomically; readers always
// see either the previous complete table or the new one.
type DatasetService struct {
	cfg      config.DatasetConfig
	loader   *loader.Loader
	logger   *slog.Logger
	events   EventPublisher
	metrics  *infrastructure.PipelineMetrics
	exporter *exporter.ExcelExporter

	mu    sync.RWMutex
	snap  *loader.Snapshot
	table *dataset.Table
}

// NewDatasetService creates the dataset service. events and metrics may be
// nil.
func NewDatasetService(cfg config.DatasetConfig, ldr *loader.Loader, events EventPublisher, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *DatasetService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatasetService{
		cfg:      cfg,
		loader:   ldr,
		logger:   logger.With(slog.String("service", "dataset")),
		events:   events,
		metrics:  metrics,
		exporter: exporter.NewExcel(logger),
	}
}

// LoadResult describes a completed load.
type LoadResult struct {
	SnapshotID string    `json:"snapshot_id"`
	Source     string    `json:"source"`
	SourceName string    `json:"source_name,omitempty"`
	Digest     string    `json:"digest"`
	Rows       int       `json:"rows"`
	Columns    int       `json:"columns"`
	LoadedAt   time.Time `json:"loaded_at"`
	Normalized bool      `json:"normalized"`
}

// LoadFromUpload ingests an uploaded file through the full pipeline.
func (s *DatasetService) LoadFromUpload(ctx context.Context, filename string, data []byte) (*LoadResult, error) {
	return s.load(ctx, "upload", filename, func() (*loader.Snapshot, error) {
		return s.loader.LoadUpload(ctx, filename, data)
	})
}

// LoadFromLink ingests a dataset from a Google Drive share link.
func (s *DatasetService) LoadFromLink(ctx context.Context, link string) (*LoadResult, error) {
	return s.load(ctx, "link", link, func() (*loader.Snapshot, error) {
		return s.loader.LoadLink(ctx, link)
	})
}

// LoadFromFile ingests a dataset from the local filesystem.
func (s *DatasetService) LoadFromFile(ctx context.Context, path string) (*LoadResult, error) {
	return s.load(ctx, "file", path, func() (*loader.Snapshot, error) {
		return s.loader.LoadFile(ctx, path)
	})
}

func (s *DatasetService) load(ctx context.Context, source, ref string, fetch func() (*loader.Snapshot, error)) (*LoadResult, error) {
	start := time.Now()
	s.publish(EventLoadStarted, map[string]any{"source": source, "ref": ref})
	s.logger.InfoContext(ctx, "dataset load started",
		slog.String("source", source),
		slog.String("ref", ref))

	snap, err := fetch()
	if err != nil {
		s.recordLoad(ctx, source, "error", start)
		s.publish(EventLoadFailed, map[string]any{"source": source, "error": err.Error()})
		return nil, err
	}

	// Postprocessing and normalization run on every load. The loader caches
	// parsed tables keyed by content, so repeated loads only pay for these
	// two passes.
	table := dataset.Postprocess(snap.Table)
	if s.cfg.Normalize {
		table = dataset.Normalize(table, s.cfg.NullTokens)
	}

	s.mu.Lock()
	s.snap = snap
	s.table = table
	s.mu.Unlock()

	s.recordLoad(ctx, source, "ok", start)
	if s.metrics != nil {
		s.metrics.DatasetRowsLoaded.Record(ctx, int64(table.NumRows()))
	}

	result := &LoadResult{
		SnapshotID: snap.ID,
		Source:     snap.Source,
		SourceName: snap.SourceName,
		Digest:     snap.Digest,
		Rows:       table.NumRows(),
		Columns:    table.NumCols(),
		LoadedAt:   snap.LoadedAt,
		Normalized: s.cfg.Normalize,
	}
	s.publish(EventLoadComplete, result)
	s.logger.InfoContext(ctx, "dataset load complete",
		slog.String("snapshot_id", snap.ID),
		slog.Int("rows", result.Rows),
		slog.Int("columns", result.Columns),
		slog.String("duration", time.Since(start).String()))
	return result, nil
}

// Summary describes the currently loaded dataset.
type Summary struct {
	SnapshotID  string    `json:"snapshot_id"`
	Source      string    `json:"source"`
	SourceName  string    `json:"source_name,omitempty"`
	Digest      string    `json:"digest"`
	LoadedAt    time.Time `json:"loaded_at"`
	Rows        int       `json:"rows"`
	Columns     int       `json:"columns"`
	ColumnNames []string  `json:"column_names"`
	Years       []string  `json:"years,omitempty"`
	Divisions   []string  `json:"divisions,omitempty"`
}

// Summary returns metadata for the loaded dataset.
func (s *DatasetService) Summary(ctx context.Context) (*Summary, error) {
	snap, table, err := s.current()
	if err != nil {
		return nil, err
	}
	return &Summary{
		SnapshotID:  snap.ID,
		Source:      snap.Source,
		SourceName:  snap.SourceName,
		Digest:      snap.Digest,
		LoadedAt:    snap.LoadedAt,
		Rows:        table.NumRows(),
		Columns:     table.NumCols(),
		ColumnNames: table.Columns(),
		Years:       table.Distinct(dataset.ColumnYear),
		Divisions:   table.Distinct(dataset.ColumnDivision),
	}, nil
}

// FilterOption is one multi-select control: a column, its observed values,
// and whether the column carries missing values that can be admitted
// explicitly.
type FilterOption struct {
	Column     string   `json:"column"`
	Values     []string `json:"values"`
	HasMissing bool     `json:"has_missing"`
}

// FilterOptions returns a control per configured filter column that exists
// in the dataset. Configured columns absent from the data are skipped.
func (s *DatasetService) FilterOptions(ctx context.Context) ([]FilterOption, error) {
	_, table, err := s.current()
	if err != nil {
		return nil, err
	}

	options := make([]FilterOption, 0, len(s.cfg.FilterColumns))
	for _, col := range s.cfg.FilterColumns {
		if !table.Has(col) {
			s.logger.WarnContext(ctx, "configured filter column absent from dataset",
				slog.String("column", col))
			continue
		}
		options = append(options, FilterOption{
			Column:     col,
			Values:     table.Distinct(col),
			HasMissing: table.MissingCount(col) > 0,
		})
	}
	return options, nil
}

// PreviewPage is a filtered page of raw rows.
type PreviewPage struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	TotalRows int        `json:"total_rows"`
	Truncated bool       `json:"truncated"`
}

// Preview applies the selection and returns up to limit rows. limit <= 0
// falls back to the configured preview limit.
func (s *DatasetService) Preview(ctx context.Context, sel dataset.Selection, limit int) (*PreviewPage, error) {
	_, table, err := s.current()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.PreviewLimit
	}

	filtered := s.filter(ctx, table, sel)
	n := filtered.NumRows()
	rows := make([][]string, 0, min(n, limit))
	for r := 0; r < n && r < limit; r++ {
		rows = append(rows, filtered.Row(r))
	}
	return &PreviewPage{
		Columns:   filtered.Columns(),
		Rows:      rows,
		TotalRows: n,
		Truncated: n > limit,
	}, nil
}

// CountsView is the result of a grouped count over the filtered table.
type CountsView struct {
	Columns []string             `json:"columns"`
	Skipped []string             `json:"skipped,omitempty"`
	Rows    int                  `json:"rows"`
	Groups  []dataset.GroupCount `json:"groups"`
}

// Counts filters the table and counts rows grouped by the requested columns.
// Requested columns absent from the dataset are skipped and reported; the
// call fails only when none of them exist.
func (s *DatasetService) Counts(ctx context.Context, sel dataset.Selection, columns []string) (*CountsView, error) {
	_, table, err := s.current()
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, apperrors.NewValidationError("at least one grouping column is required")
	}

	var present, skipped []string
	for _, col := range columns {
		if table.Has(col) {
			present = append(present, col)
		} else {
			skipped = append(skipped, col)
		}
	}
	if len(present) == 0 {
		return nil, apperrors.NewMissingColumnError(fmt.Sprintf("%v", columns))
	}
	if len(skipped) > 0 {
		s.logger.WarnContext(ctx, "skipping absent grouping columns",
			slog.Any("columns", skipped))
	}

	filtered := s.filter(ctx, table, sel)
	groups, err := dataset.CountBy(filtered, present...)
	if err != nil {
		if errors.Is(err, dataset.ErrColumnNotFound) {
			return nil, apperrors.NewMissingColumnError(fmt.Sprintf("%v", present))
		}
		return nil, err
	}
	return &CountsView{
		Columns: present,
		Skipped: skipped,
		Rows:    filtered.NumRows(),
		Groups:  groups,
	}, nil
}

// HistogramView is a binned distribution of an integer column.
type HistogramView struct {
	Column string                 `json:"column"`
	Rows   int                    `json:"rows"`
	Bins   []dataset.HistogramBin `json:"bins"`
}

// Histogram filters the table and bins the named integer column.
func (s *DatasetService) Histogram(ctx context.Context, sel dataset.Selection, column string, bins int) (*HistogramView, error) {
	_, table, err := s.current()
	if err != nil {
		return nil, err
	}
	if column == "" {
		return nil, apperrors.NewValidationError("histogram column is required")
	}
	if !table.Has(column) {
		return nil, apperrors.NewMissingColumnError(column)
	}

	filtered := s.filter(ctx, table, sel)
	hist, err := dataset.Histogram(filtered, column, bins)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	return &HistogramView{
		Column: column,
		Rows:   filtered.NumRows(),
		Bins:   hist,
	}, nil
}

// MissingnessView reports the per-column missing fraction of the loaded
// table, worst first.
type MissingnessView struct {
	Rows    int                         `json:"rows"`
	Columns []dataset.ColumnMissingness `json:"columns"`
}

// Missingness audits missing values across the whole loaded table.
func (s *DatasetService) Missingness(ctx context.Context) (*MissingnessView, error) {
	_, table, err := s.current()
	if err != nil {
		return nil, err
	}
	return &MissingnessView{
		Rows:    table.NumRows(),
		Columns: dataset.MissingnessReport(table),
	}, nil
}

// DuplicateDetail is one duplicated key with its classified cause.
type DuplicateDetail struct {
	Key              string                 `json:"key"`
	Rows             []int                  `json:"rows"`
	Cause            dataset.DuplicateCause `json:"cause"`
	DifferingColumns []string               `json:"differing_columns,omitempty"`
}

// DuplicatesView is the duplicate audit over an identifier column.
type DuplicatesView struct {
	Key    string            `json:"key"`
	Rows   int               `json:"rows"`
	Groups []DuplicateDetail `json:"groups"`
}

// Duplicates audits the uniqueness of an identifier column and classifies
// each violation. An empty key uses the configured duplicate key.
func (s *DatasetService) Duplicates(ctx context.Context, key string) (*DuplicatesView, error) {
	_, table, err := s.current()
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = s.cfg.DuplicateKey
	}

	groups, err := dataset.FindDuplicateGroups(table, key)
	if err != nil {
		if errors.Is(err, dataset.ErrColumnNotFound) {
			return nil, apperrors.NewMissingColumnError(key)
		}
		return nil, err
	}

	auditCfg := dataset.DefaultAuditConfig()
	details := make([]DuplicateDetail, 0, len(groups))
	for _, g := range groups {
		report := dataset.ClassifyDuplicateCause(table, g, auditCfg)
		details = append(details, DuplicateDetail{
			Key:              g.Key,
			Rows:             g.Rows,
			Cause:            report.Cause,
			DifferingColumns: report.DifferingColumns,
		})
	}
	s.logger.InfoContext(ctx, "duplicate audit complete",
		slog.String("key", key),
		slog.Int("duplicate_groups", len(details)))
	return &DuplicatesView{Key: key, Rows: table.NumRows(), Groups: details}, nil
}

// ExportView names one aggregate sheet of an export.
type ExportView struct {
	Name    string   `json:"name" validate:"required,max=64"`
	Columns []string `json:"columns" validate:"required,min=1,max=3,dive,columnname"`
}

// ExportWorkbook filters the table and writes it, plus one sheet per view,
// to an Excel workbook. With no views requested, a univariate count sheet is
// produced for each configured filter column present in the data.
func (s *DatasetService) ExportWorkbook(ctx context.Context, sel dataset.Selection, views []ExportView) ([]byte, error) {
	_, table, err := s.current()
	if err != nil {
		return nil, err
	}
	filtered := s.filter(ctx, table, sel)

	if len(views) == 0 {
		for _, col := range s.cfg.FilterColumns {
			if filtered.Has(col) {
				views = append(views, ExportView{Name: col, Columns: []string{col}})
			}
		}
	}

	sheets := make([]exporter.View, 0, len(views))
	for _, v := range views {
		groups, err := dataset.CountBy(filtered, v.Columns...)
		if err != nil {
			if errors.Is(err, dataset.ErrColumnNotFound) {
				s.logger.WarnContext(ctx, "skipping export view with absent column",
					slog.String("view", v.Name),
					slog.Any("columns", v.Columns))
				continue
			}
			return nil, err
		}
		sheets = append(sheets, exporter.View{Name: v.Name, Columns: v.Columns, Groups: groups})
	}

	data, err := s.exporter.Workbook(filtered, sheets)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to build workbook", err)
	}
	s.logger.InfoContext(ctx, "export complete",
		slog.Int("rows", filtered.NumRows()),
		slog.Int("sheets", len(sheets)),
		slog.Int("bytes", len(data)))
	return data, nil
}

// FilteredTable applies a selection and returns the resulting table. The
// exporter uses this to write workbook sheets.
func (s *DatasetService) FilteredTable(ctx context.Context, sel dataset.Selection) (*dataset.Table, error) {
	_, table, err := s.current()
	if err != nil {
		return nil, err
	}
	return s.filter(ctx, table, sel), nil
}

// filter applies the selection and records the surviving row count.
func (s *DatasetService) filter(ctx context.Context, table *dataset.Table, sel dataset.Selection) *dataset.Table {
	filtered := dataset.Filter(table, sel)
	if s.metrics != nil {
		s.metrics.FilterRowsReturned.Record(ctx, int64(filtered.NumRows()))
	}
	return filtered
}

func (s *DatasetService) current() (*loader.Snapshot, *dataset.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.table == nil {
		return nil, nil, apperrors.NewNoDatasetError()
	}
	return s.snap, s.table, nil
}

func (s *DatasetService) publish(eventType string, payload any) {
	if s.events != nil {
		s.events.Publish(eventType, payload)
	}
}

func (s *DatasetService) recordLoad(ctx context.Context, source, status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	)
	s.metrics.DatasetLoadsTotal.Add(ctx, 1, attrs)
	s.metrics.DatasetLoadDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}
