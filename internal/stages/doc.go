// Package stages declares the fixed ingestion stage order and prerequisite
// table. The graph is static configuration validated once at startup.
package stages
