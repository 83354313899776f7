// Package api hosts the optional status server. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for a live snapshot of the current batch.
//   - GET /v1/runs, /v1/runs/{run_id} and /v1/runs/{run_id}/contexts for run
//     history via the store.RunRepository interface.
package api
