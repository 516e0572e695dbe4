package storage

// Package storage persists the engine's durable state:
//   - One DailyAggregate document per calendar date
//   - One PushRecord per (mode, date), swept by retention
//
// Two drivers are provided: a dependency-free file backend (one JSON
// document per day) and SQLite. Serialization is deterministic, so
// re-saving an unmodified aggregate produces byte-identical state.
