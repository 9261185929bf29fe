// Package cmd defines the harvester command line.
//
// Architecture overview:
//   - Record store: businesses live in PostgreSQL (pgx pool), SQLite, or an in-memory store seeded from a
//     "Business Name,Website" CSV. Only records with a usable website and status pending are harvested.
//   - Dispatcher & queue: `run` fetches pending records and hands them one at a time through an unbuffered
//     in-memory queue to harvest.concurrency workers. SIGINT/SIGTERM stop new dispatches; in-flight records
//     finish and are persisted before the process exits.
//   - Harvest pipeline: each worker owns one rendering session for the duration of one record. The orchestrator
//     consults the per-domain circuit breaker, fetches the home page with Colly, renders it with Chromedp
//     (dismissing cookie banners), then sweeps contact paths until enough addresses are known. Candidates are
//     cleaned, scored and ranked before the worker writes the status, the top addresses and any social profiles.
//   - Fanout: when pubsub.topic is set every persisted result is also published as a harvest event (Pub/Sub when
//     pubsub.project_id is set, otherwise an in-memory publisher).
//   - Export: `export` (or `run --export`) writes harvested records as CSV or XLSX to a local directory, GCS,
//     or memory.
//   - Status API: `serve` exposes health, readiness, Prometheus metrics, store stats, breaker state and a
//     dry-run harvest endpoint.
//
// Operational notes:
//   - Politeness: light fetches are paced per domain (http.rps, http.burst) and contact pages are separated by a
//     randomized delay (harvest.contact_delay_min_ms..max_ms).
//   - Failure isolation: breaker.threshold consecutive failures open a domain for breaker.reset_seconds; records
//     on an open domain fail fast without any fetch.
//   - Resumption: results are persisted per record, so an interrupted run resumes from the remaining pending
//     records. `reset-status` returns every record with a website to pending.
//
// Quick checklist:
//   - Configure via file (--config) or env vars: HARVESTER_STORE_DRIVER, HARVESTER_STORE_DSN,
//     HARVESTER_HARVEST_CONCURRENCY, HARVESTER_HEADLESS_ENABLED, HARVESTER_EXPORT_SINK, HARVESTER_PUBSUB_TOPIC.
//   - Try one site: harvester test-url https://example.co.uk --config config.yaml
//   - Harvest everything pending: harvester run --concurrency 5 --export
package cmd
