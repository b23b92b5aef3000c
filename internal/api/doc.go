// Package api hosts the HTTP server, middleware, and REST handlers of the rank
// service. Notable routes:
//   - POST /v1/positions runs one crawl and returns the CrawlResult.
//   - GET /v1/history, /v1/history/recent and /v1/history/export read past crawls.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
