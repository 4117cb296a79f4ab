// Package pipeline runs the nightly batch: per-market ingestion,
// enrichment, rescoring, the intro outreach batch and hot-lead alerts,
// then one global followup pass. A cluster-wide lock keeps the run
// single-writer and a background task record carries its outcome.
//
// The package also hosts the retention sweeper that trims derived rows
// (timeline events, finished tasks, expired deal sheets) on a daily tick.
package pipeline
