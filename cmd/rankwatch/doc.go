// Package main hosts the rankwatch HTTP service.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes POST /v1/positions, the history endpoints, health probes, and
//     /metrics. Requests are validated and handed to the crawl orchestrator.
//   - Crawl: internal/rank.Orchestrator launches one Chrome per request (internal/fetcher/headless), resolves the
//     primary region across up to crawl.max_pages search pages, synthesizes the derived regions, and looks up
//     product details (colly probe, promoted to Chrome when the page looks unrendered).
//   - Persistence & fanout: successful crawls are appended to the snapshot store (memory or Postgres), recorded in
//     the recent ring, cached until local midnight (memory or Redis), and announced on Pub/Sub. Raw search pages can
//     be archived to memory, local disk, or GCS.
//   - Configuration & plumbing: .env files and Viper (RANKWATCH_ prefix) populate config; zap provides structured
//     logging; Prometheus metrics are exported on /metrics.
//
// Operational notes:
//   - Every crawl is bounded by crawl.deadline; overruns kill the browser and return a degraded result.
//   - headless.max_parallel bounds concurrent Chrome processes across requests.
//   - The HTTP server listens on server.port (overridable via PORT) and drains on SIGINT/SIGTERM.
//
// Quick checklist:
//   - Run locally: go run ./cmd/rankwatch -config config.yaml (or rely solely on env overrides).
//   - Persistence: RANKWATCH_STORAGE_BACKEND=postgres RANKWATCH_DB_DSN=...; cache: RANKWATCH_CACHE_BACKEND=redis.
package main
