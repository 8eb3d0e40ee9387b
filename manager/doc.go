// Package manager drives the memory lifecycle: consolidation of aged
// entries, forgetting under configurable strategies, tier promotion,
// health metrics, scheduled optimization runs, and backup/restore of
// critical entries.
//
// The manager never holds two component locks at once; each sub-operation
// reads a snapshot, computes, and commits through the store's transactional
// methods.
package manager
