// Package services provides error classification markers and context
// annotation helpers shared by stage processors and the pipeline.
package services
