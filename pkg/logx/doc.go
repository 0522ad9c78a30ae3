// Package logx is the structured logging layer for errwatch.
//
// It wraps zerolog behind a small Logger value type so components can be
// handed a logger without caring about sinks. The Service owns the sinks
// (console, file, report) and can swap them at runtime when the config
// reloads; loggers created from the Service stay live across swaps.
//
// The report sink is how error-level records reach the dispatch pipeline:
// every line written at error level or above is handed to the registered
// ReportSink as a raw JSON line. Components that run INSIDE the dispatch
// pipeline must log at warn level or below, otherwise their own logging
// would re-enter the pipeline.
package logx
