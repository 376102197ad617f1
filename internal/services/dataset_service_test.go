package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"emspulse/internal/config"
	"emspulse/internal/dataset"
	apperrors "emspulse/internal/errors"
	"emspulse/internal/loader"
)

const crashCSV = `PcrKey,Year,Gender,AgeGroup,Race
A1,2019,Male,0-24,White
A2,2019,Female,25-34,Black
A3,2020,Male,0-24,
A3,2020,Male,0-24,White
A4,2021,Female,85+,White
`

type stubPublisher struct {
	events []string
}

func (p *stubPublisher) Publish(eventType string, payload any) {
	p.events = append(p.events, eventType)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDatasetConfig() config.DatasetConfig {
	return config.DatasetConfig{
		FilterColumns: []string{"Gender", "Race", "AgeGroup", "Urbanicity"},
		Normalize:     false,
		DuplicateKey:  "PcrKey",
		PreviewLimit:  100,
	}
}

func newTestService(t *testing.T, cfg config.DatasetConfig) (*DatasetService, *stubPublisher) {
	t.Helper()
	logger := testLogger()
	ldr := loader.New(config.Default().Loader, logger)
	pub := &stubPublisher{}
	return NewDatasetService(cfg, ldr, pub, nil, logger), pub
}

func newLoadedService(t *testing.T) *DatasetService {
	t.Helper()
	svc, _ := newTestService(t, testDatasetConfig())
	_, err := svc.LoadFromUpload(context.Background(), "crash.csv", []byte(crashCSV))
	require.NoError(t, err)
	return svc
}

func assertAppErrorType(t *testing.T, err error, want apperrors.ErrorType) {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, want, appErr.Type)
}

func TestDatasetService_NoDatasetLoaded(t *testing.T) {
	svc, _ := newTestService(t, testDatasetConfig())
	ctx := context.Background()

	_, err := svc.Summary(ctx)
	assertAppErrorType(t, err, apperrors.ErrTypeNoDataset)

	_, err = svc.FilterOptions(ctx)
	assertAppErrorType(t, err, apperrors.ErrTypeNoDataset)

	_, err = svc.Counts(ctx, nil, []string{"Gender"})
	assertAppErrorType(t, err, apperrors.ErrTypeNoDataset)

	_, err = svc.Missingness(ctx)
	assertAppErrorType(t, err, apperrors.ErrTypeNoDataset)
}

func TestDatasetService_LoadFromUpload(t *testing.T) {
	svc, pub := newTestService(t, testDatasetConfig())

	result, err := svc.LoadFromUpload(context.Background(), "crash.csv", []byte(crashCSV))
	require.NoError(t, err)

	assert.Equal(t, "upload", result.Source)
	assert.Equal(t, "crash.csv", result.SourceName)
	assert.Equal(t, 5, result.Rows)
	assert.Equal(t, 5, result.Columns)
	assert.NotEmpty(t, result.SnapshotID)
	assert.NotEmpty(t, result.Digest)
	assert.False(t, result.Normalized)

	assert.Equal(t, []string{EventLoadStarted, EventLoadComplete}, pub.events)
}

func TestDatasetService_LoadFailurePublishesEvent(t *testing.T) {
	svc, pub := newTestService(t, testDatasetConfig())

	_, err := svc.LoadFromUpload(context.Background(), "empty.csv", nil)
	require.Error(t, err)
	assert.Equal(t, []string{EventLoadStarted, EventLoadFailed}, pub.events)
}

func TestDatasetService_LoadNormalizes(t *testing.T) {
	cfg := testDatasetConfig()
	cfg.Normalize = true
	svc, _ := newTestService(t, cfg)

	result, err := svc.LoadFromUpload(context.Background(), "crash.csv", []byte(crashCSV))
	require.NoError(t, err)
	assert.True(t, result.Normalized)

	options, err := svc.FilterOptions(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, options)
	assert.Equal(t, []string{"female", "male"}, options[0].Values)
}

func TestDatasetService_Summary(t *testing.T) {
	svc := newLoadedService(t)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Rows)
	assert.Equal(t, 5, summary.Columns)
	assert.Equal(t, []string{"PcrKey", "Year", "Gender", "AgeGroup", "Race"}, summary.ColumnNames)
	assert.Equal(t, []string{"2019", "2020", "2021"}, summary.Years)
}

func TestDatasetService_FilterOptions(t *testing.T) {
	svc := newLoadedService(t)

	options, err := svc.FilterOptions(context.Background())
	require.NoError(t, err)

	// Urbanicity is configured but absent from the data, so three controls.
	require.Len(t, options, 3)
	assert.Equal(t, "Gender", options[0].Column)
	assert.Equal(t, []string{"Female", "Male"}, options[0].Values)
	assert.False(t, options[0].HasMissing)

	assert.Equal(t, "Race", options[1].Column)
	assert.True(t, options[1].HasMissing)
}

func TestDatasetService_Preview(t *testing.T) {
	svc := newLoadedService(t)
	ctx := context.Background()

	page, err := svc.Preview(ctx, nil, 2)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 2)
	assert.Equal(t, 5, page.TotalRows)
	assert.True(t, page.Truncated)

	page, err = svc.Preview(ctx, dataset.Selection{"Gender": {"Male"}}, 0)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 3)
	assert.Equal(t, 3, page.TotalRows)
	assert.False(t, page.Truncated)
}

func TestDatasetService_Counts(t *testing.T) {
	svc := newLoadedService(t)
	ctx := context.Background()

	view, err := svc.Counts(ctx, nil, []string{"Gender", "Bogus"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Gender"}, view.Columns)
	assert.Equal(t, []string{"Bogus"}, view.Skipped)
	assert.Equal(t, 5, view.Rows)
	require.Len(t, view.Groups, 2)
	assert.Equal(t, dataset.GroupCount{Key: []string{"Male"}, Count: 3}, view.Groups[0])
	assert.Equal(t, dataset.GroupCount{Key: []string{"Female"}, Count: 2}, view.Groups[1])
}

func TestDatasetService_CountsFiltered(t *testing.T) {
	svc := newLoadedService(t)

	view, err := svc.Counts(context.Background(),
		dataset.Selection{"Year": {"2019"}}, []string{"Gender"})
	require.NoError(t, err)
	assert.Equal(t, 2, view.Rows)
	require.Len(t, view.Groups, 2)
	assert.Equal(t, 1, view.Groups[0].Count)
}

func TestDatasetService_CountsErrors(t *testing.T) {
	svc := newLoadedService(t)
	ctx := context.Background()

	_, err := svc.Counts(ctx, nil, nil)
	assertAppErrorType(t, err, apperrors.ErrTypeValidation)

	_, err = svc.Counts(ctx, nil, []string{"Bogus", "AlsoBogus"})
	assertAppErrorType(t, err, apperrors.ErrTypeMissingColumn)
}

func TestDatasetService_Histogram(t *testing.T) {
	svc := newLoadedService(t)
	ctx := context.Background()

	view, err := svc.Histogram(ctx, nil, "Year", 3)
	require.NoError(t, err)
	assert.Equal(t, "Year", view.Column)
	assert.Equal(t, 5, view.Rows)
	total := 0
	for _, b := range view.Bins {
		total += b.Count
	}
	assert.Equal(t, 5, total)
}

func TestDatasetService_HistogramErrors(t *testing.T) {
	svc := newLoadedService(t)
	ctx := context.Background()

	_, err := svc.Histogram(ctx, nil, "", 10)
	assertAppErrorType(t, err, apperrors.ErrTypeValidation)

	_, err = svc.Histogram(ctx, nil, "Bogus", 10)
	assertAppErrorType(t, err, apperrors.ErrTypeMissingColumn)

	_, err = svc.Histogram(ctx, nil, "Gender", 10)
	assertAppErrorType(t, err, apperrors.ErrTypeValidation)
}

func TestDatasetService_Missingness(t *testing.T) {
	svc := newLoadedService(t)

	view, err := svc.Missingness(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, view.Rows)
	require.NotEmpty(t, view.Columns)
	assert.Equal(t, "Race", view.Columns[0].Column)
	assert.InDelta(t, 0.2, view.Columns[0].Fraction, 1e-9)
}

func TestDatasetService_Duplicates(t *testing.T) {
	svc := newLoadedService(t)

	view, err := svc.Duplicates(context.Background(), "")
	require.NoError(t, err)

	// Empty key falls back to the configured identifier.
	assert.Equal(t, "PcrKey", view.Key)
	require.Len(t, view.Groups, 1)
	assert.Equal(t, "A3", view.Groups[0].Key)
	assert.Equal(t, dataset.CauseUnexplained, view.Groups[0].Cause)
	assert.Equal(t, []string{"Race"}, view.Groups[0].DifferingColumns)
}

func TestDatasetService_DuplicatesUnknownKey(t *testing.T) {
	svc := newLoadedService(t)

	_, err := svc.Duplicates(context.Background(), "Bogus")
	assertAppErrorType(t, err, apperrors.ErrTypeMissingColumn)
}

func TestDatasetService_ExportWorkbook(t *testing.T) {
	svc := newLoadedService(t)

	data, err := svc.ExportWorkbook(context.Background(), nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	// Default views: one count sheet per filter column present in the data.
	assert.Equal(t, []string{"Data", "Gender", "Race", "AgeGroup"}, f.GetSheetList())

	rows, err := f.GetRows("Data")
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"PcrKey", "Year", "Gender", "AgeGroup", "Race"}, rows[0])
}

func TestDatasetService_ExportWorkbookCustomViews(t *testing.T) {
	svc := newLoadedService(t)

	views := []ExportView{
		{Name: "By Gender", Columns: []string{"Gender"}},
		{Name: "Bad", Columns: []string{"Bogus"}},
	}
	data, err := svc.ExportWorkbook(context.Background(), nil, views)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	// Views over absent columns are skipped, not fatal.
	assert.Equal(t, []string{"Data", "By Gender"}, f.GetSheetList())

	rows, err := f.GetRows("By Gender")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Gender", "Count"}, rows[0])
	assert.Equal(t, []string{"Male", "3"}, rows[1])
}

func TestDatasetService_FilteredTable(t *testing.T) {
	svc := newLoadedService(t)

	table, err := svc.FilteredTable(context.Background(), dataset.Selection{"Year": {"2020"}})
	require.NoError(t, err)
	assert.Equal(t, 2, table.NumRows())

	_, err = (&DatasetService{logger: testLogger()}).FilteredTable(context.Background(), nil)
	assert.True(t, errors.As(err, new(*apperrors.AppError)))
}
