// auditcsv runs the data-quality audits over a local dataset file and
// writes missingness and duplicate reports as CSV, without starting the
// server.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"emspulse/internal/config"
	"emspulse/internal/dataset"
	"emspulse/internal/infrastructure"
	"emspulse/internal/loader"
)

func main() {
	in := flag.String("in", "", "input dataset file (.csv or .xlsx)")
	out := flag.String("out", "reports", "output directory for audit reports")
	key := flag.String("key", "", "identifier column for the duplicate audit (defaults to configured key)")
	noNormalize := flag.Bool("no-normalize", false, "skip semantic-null normalization")
	flag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: auditcsv -in <dataset.csv> [-out reports] [-key PcrKey]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	if *key == "" {
		*key = cfg.Dataset.DuplicateKey
	}

	logger.Info("starting dataset audit",
		slog.String("input", *in),
		slog.String("output_dir", *out),
		slog.String("duplicate_key", *key))

	if err := os.MkdirAll(*out, 0755); err != nil {
		logger.Error("cannot create output directory",
			slog.String("path", *out),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	ldr := loader.New(cfg.Loader, logger)
	snap, err := ldr.LoadFile(ctx, *in)
	if err != nil {
		logger.Error("failed to load dataset", slog.String("error", err.Error()))
		os.Exit(1)
	}

	table := dataset.Postprocess(snap.Table)
	if !*noNormalize {
		table = dataset.Normalize(table, cfg.Dataset.NullTokens)
	}
	logger.Info("dataset loaded",
		slog.Int("rows", table.NumRows()),
		slog.Int("columns", table.NumCols()))

	missingPath := filepath.Join(*out, "missingness.csv")
	if err := writeMissingness(missingPath, table); err != nil {
		logger.Error("failed to write missingness report", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("missingness report written", slog.String("path", missingPath))

	dupPath := filepath.Join(*out, "duplicates.csv")
	groups, err := writeDuplicates(dupPath, table, *key)
	if err != nil {
		logger.Error("failed to write duplicate report",
			slog.String("key", *key),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("duplicate report written",
		slog.String("path", dupPath),
		slog.Int("duplicate_groups", groups))
}

func writeMissingness(path string, table *dataset.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"column", "missing_fraction", "missing_count"}); err != nil {
		return err
	}
	for _, m := range dataset.MissingnessReport(table) {
		record := []string{
			m.Column,
			strconv.FormatFloat(m.Fraction, 'f', 6, 64),
			strconv.Itoa(table.MissingCount(m.Column)),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeDuplicates(path string, table *dataset.Table, key string) (int, error) {
	groups, err := dataset.FindDuplicateGroups(table, key)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"key", "rows", "cause", "differing_columns"}); err != nil {
		return 0, err
	}

	auditCfg := dataset.DefaultAuditConfig()
	for _, g := range groups {
		report := dataset.ClassifyDuplicateCause(table, g, auditCfg)
		rows := make([]string, len(g.Rows))
		for i, r := range g.Rows {
			rows[i] = strconv.Itoa(r)
		}
		record := []string{
			g.Key,
			strings.Join(rows, " "),
			string(report.Cause),
			strings.Join(report.DifferingColumns, " "),
		}
		if err := w.Write(record); err != nil {
			return 0, err
		}
	}
	w.Flush()
	return len(groups), w.Error()
}
