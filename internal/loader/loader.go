// Package loader retrieves the raw crash-record dataset (direct upload,
// Google Drive share link, or local file), parses it into a dataset.Table,
// and memoizes the result so repeated loads of the same source never refetch
// or reparse.
package loader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/singleflight"

	"emspulse/internal/config"
	"emspulse/internal/dataset"
	apperrors "emspulse/internal/errors"
)

// Snapshot is one loaded, parsed dataset. Snapshots are immutable; the
// service layer publishes them to the rest of the application.
type Snapshot struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	SourceName string    `json:"source_name,omitempty"`
	Digest     string    `json:"digest"`
	LoadedAt   time.Time `json:"loaded_at"`

	Table *dataset.Table `json:"-"`
}

// Loader fetches and parses datasets. Safe for concurrent use; concurrent
// loads of the same source collapse into a single fetch via singleflight.
type Loader struct {
	cfg    config.LoaderConfig
	logger *slog.Logger
	client *http.Client
	group  singleflight.Group

	mu    sync.Mutex
	cache map[string]*Snapshot
	order []string
}

// New creates a Loader. The HTTP client timeout bounds remote fetches;
// shared files may be large, so the configured default is generous.
func New(cfg config.LoaderConfig, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "loader")),
		client: &http.Client{Timeout: cfg.FetchTimeout},
		cache:  make(map[string]*Snapshot),
	}
}

// LoadUpload parses user-supplied bytes. CSV is assumed unless the filename
// carries an .xlsx extension. Repeated uploads of identical content return
// the cached snapshot.
func (l *Loader) LoadUpload(ctx context.Context, filename string, data []byte) (*Snapshot, error) {
	digest := digestBytes(data)
	key := "upload:" + digest
	if snap := l.cached(key); snap != nil {
		l.logger.InfoContext(ctx, "upload served from cache",
			slog.String("filename", filename),
			slog.String("digest", digest))
		return snap, nil
	}

	table, err := l.parse(filename, data)
	if err != nil {
		return nil, err
	}
	snap := l.store(key, &Snapshot{
		Source:     "upload",
		SourceName: filename,
		Digest:     digest,
		Table:      table,
	})
	l.logger.InfoContext(ctx, "upload parsed",
		slog.String("filename", filename),
		slog.Int("rows", table.NumRows()),
		slog.Int("columns", table.NumCols()))
	return snap, nil
}

// LoadLink resolves a Google Drive share link, downloads the file, and
// parses it. The snapshot is cached under the link, so pasting the same
// link again does not refetch; concurrent identical loads share one fetch.
func (l *Loader) LoadLink(ctx context.Context, link string) (*Snapshot, error) {
	fileID, err := ExtractFileID(link)
	if err != nil {
		return nil, err
	}
	key := "link:" + link

	v, err, shared := l.group.Do(key, func() (any, error) {
		if snap := l.cached(key); snap != nil {
			return snap, nil
		}

		start := time.Now()
		name, data, err := l.fetch(ctx, fileID)
		if err != nil {
			return nil, err
		}
		l.logger.InfoContext(ctx, "remote file fetched",
			slog.String("file_id", fileID),
			slog.Int("bytes", len(data)),
			slog.String("duration", time.Since(start).String()))

		table, err := l.parse(name, data)
		if err != nil {
			return nil, err
		}
		return l.store(key, &Snapshot{
			Source:     "link",
			SourceName: name,
			Digest:     digestBytes(data),
			Table:      table,
		}), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		l.logger.InfoContext(ctx, "load shared with in-flight fetch", slog.String("file_id", fileID))
	}
	return v.(*Snapshot), nil
}

// LoadFile parses a dataset from the local filesystem. Used by the offline
// audit CLI and by deployments that ship the export alongside the server.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewFetchError(fmt.Sprintf("failed to read %s", path), err)
	}
	digest := digestBytes(data)
	key := "file:" + path + ":" + digest
	if snap := l.cached(key); snap != nil {
		return snap, nil
	}

	table, err := l.parse(path, data)
	if err != nil {
		return nil, err
	}
	snap := l.store(key, &Snapshot{
		Source:     "file",
		SourceName: filepath.Base(path),
		Digest:     digest,
		Table:      table,
	})
	l.logger.InfoContext(ctx, "file parsed",
		slog.String("path", path),
		slog.Int("rows", table.NumRows()))
	return snap, nil
}

// parse dispatches on extension: .xlsx via excelize, everything else as
// delimited text. Type inference is deferred to the postprocessor, so mixed
// value shapes in a column never fail the parse.
func (l *Loader) parse(name string, data []byte) (*dataset.Table, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return parseXLSX(data)
	}
	return parseCSV(data)
}

func parseCSV(data []byte) (*dataset.Table, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, apperrors.NewParsingError("dataset is empty", nil)
		}
		return nil, apperrors.NewParsingError("failed to read header row", err)
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Ragged rows surface as a parse failure naming the line rather
			// than being dropped silently.
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, apperrors.NewParsingError(
					fmt.Sprintf("malformed record at line %d", perr.Line), err)
			}
			return nil, apperrors.NewParsingError("malformed record", err)
		}
		records = append(records, rec)
	}

	table, err := dataset.New(header, records)
	if err != nil {
		return nil, apperrors.NewParsingError("invalid tabular content", err)
	}
	return table, nil
}

func parseXLSX(data []byte) (*dataset.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewParsingError("failed to open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.NewParsingError("workbook has no sheets", nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("failed to read sheet %s", sheets[0]), err)
	}
	if len(rows) == 0 {
		return nil, apperrors.NewParsingError("dataset is empty", nil)
	}

	header := rows[0]
	records := make([][]string, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) > len(header) {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("malformed record at row %d", i+2), nil)
		}
		// Excel trims trailing empty cells; pad back to the header width.
		for len(row) < len(header) {
			row = append(row, "")
		}
		records = append(records, row)
	}

	table, err := dataset.New(header, records)
	if err != nil {
		return nil, apperrors.NewParsingError("invalid tabular content", err)
	}
	return table, nil
}

func (l *Loader) cached(key string) *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache[key]
}

func (l *Loader) store(key string, snap *Snapshot) *Snapshot {
	snap.ID = uuid.New().String()
	snap.LoadedAt = time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.cache[key]; !exists {
		l.order = append(l.order, key)
	}
	l.cache[key] = snap
	for len(l.order) > l.cfg.CacheSize {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.cache, oldest)
	}
	return snap
}

func digestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
