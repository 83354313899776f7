// Package progress carries scrape run events from the scheduler to pluggable
// sinks. Emit never blocks; a background goroutine batches events and hands
// them to the log, Prometheus and run-history sinks.
package progress
