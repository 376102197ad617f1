// Package dataset implements the in-memory record table behind the EMS
// crash dashboard and the pure pipeline stages every page depends on:
// postprocessing (type coercion, ordered AgeGroup domain), semantic-null
// normalization, multi-select filtering, group-count aggregation, and the
// duplicate/missingness auditors used by the data-cleaning pages.
//
// Tables are immutable after construction. Each stage derives a new table,
// which keeps a loaded snapshot shareable across concurrent requests with
// no locking, and each stage is a single linear pass so interactive latency
// stays acceptable on datasets in the millions of rows.
package dataset
