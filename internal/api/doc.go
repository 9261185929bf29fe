// Package api hosts the HTTP status surface for operators. Notable routes:
//   - GET /healthz and /readyz for probes; readyz pings the record store.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stats and /v1/records for record store progress.
//   - GET /v1/breaker for the per-domain circuit breaker state.
//   - POST /v1/harvest/dry-run to harvest one website without persisting.
package api
