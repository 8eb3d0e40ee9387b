// Package learning implements the feedback-driven learning engine: per-agent
// learning profiles, feedback signal processing, behavioral pattern
// extraction, and an epsilon-greedy Q-learning policy.
//
// Each profile's Q-table carries its own reader/writer lock so concurrent
// action selections never serialize against each other; all other profile
// state is guarded by the engine's lock.
package learning
