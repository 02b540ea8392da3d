// Package history keeps a SQLite record of gate runs.
//
// Each finalized RunReport becomes one row in runs plus one row per verdict.
// The schema ships as embedded migrations applied on Open.
package history
