// Package types provides unified type definitions for the MemFlow core.
//
// It contains the shared data model used by every component: memory entries,
// compliance cases, learning signals, retrieval queries, and the structured
// error taxonomy. The package has no dependencies on other MemFlow packages.
package types
