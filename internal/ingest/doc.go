// Package ingest supplies the built-in stage processors for conversation
// chunks: segmentation, turn parsing, fact extraction, metadata enrichment,
// merge, and topic classification. Each processor satisfies the pipeline
// Processor contract and owns its own payload shape.
package ingest
