// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access to run history. Notable routes:
//   - GET /healthz / readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs and /v1/runs/{run_id} for run status.
//   - GET /v1/runs/{run_id}/sources and /sites for per-source tallies and
//     per-site fetch stats via the RunRepository interface.
package api
