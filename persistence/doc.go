// Package persistence provides durable best-effort storage for memory
// entries and compliance cases.
//
// The core treats persistence as a collaborator that may fail: write
// failures are logged and never abort the in-memory commit path. Three
// implementations are provided: a GORM-backed relational store (SQLite,
// PostgreSQL, MySQL), a Redis store for hot entries with TTL, and an
// in-process map store for tests and persistence-disabled deployments.
package persistence
