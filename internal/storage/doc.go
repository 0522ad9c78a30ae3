package storage

// Package storage persists the report history: one entry per handler
// invocation, with its outcome. The history is passive, nothing replays
// failed deliveries automatically, but it lets operators see what was
// (not) delivered and feeds the scheduled digest.
