// Package sinks implements progress consumers. Each satisfies progress.Sink.
//
//   - LogSink writes the event stream at debug level.
//   - PrometheusSink exports run and per-context collectors.
//   - StoreSink persists run history through a store.RunRepository.
//   - BarSink draws a terminal progress bar for interactive runs.
package sinks
