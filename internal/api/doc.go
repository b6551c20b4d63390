// Package api hosts the HTTP server, middleware, and REST handlers for the
// tracker. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/sites/{site_id}/crawls to run, list and clear a site's crawl chain.
//   - /v1/crawls/{crawl_id} to inspect, review, export and delete single crawls.
//
// Every /v1 route acts on behalf of the user named in the X-User-ID header.
package api
