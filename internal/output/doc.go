// Package output renders run reports.
//
// Three formats are supported:
//   - text: console summary table and blocking rationales
//   - markdown: the report file kept per run
//   - json: the full report plus per-path decisions
//
// [FileSink] writes one file per run into the report directory.
package output
