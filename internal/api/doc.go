// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scan/trigger and POST /v1/alerts/process to run the pipeline on demand.
//   - GET /v1/projects for catalog reads scored against the X-Subscriber-ID profile.
//   - GET and PUT /v1/subscribers/{id} for subscriber profiles.
package api
