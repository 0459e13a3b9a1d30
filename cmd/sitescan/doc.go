// Package main hosts the sitescan service entrypoint.
//
// Architecture overview:
//   - Connectors: internal/connectors holds one package per public source (SAM.gov, Charleston permits, the
//     SC Business Opportunities bulletin, Charleston city bids). Each turns upstream payloads into normalized
//     candidates with a category, a baseline score and, when coordinates are missing, a geocoded point.
//   - Scan cycle: internal/scan runs every requested source inside one database transaction, isolating each
//     source in a savepoint so a failing source never rolls back the others. After the sources run, records not
//     seen since the start of the local day are marked inactive. Raw payloads are archived to the configured
//     blob backend (memory/local/GCS) and the archive URI is kept on the scan run.
//   - Alerts: internal/alerts selects recent high-scoring records per subscriber, filters what each channel has
//     already delivered, sends email (SMTP) and SMS (Twilio) digests and records receipts only after a send
//     succeeds.
//   - Schedule & API: robfig/cron triggers a cycle every scan.interval; the chi API exposes manual triggers,
//     scan history, a scored catalog and subscriber profiles. Cycle events go to Pub/Sub when configured.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging;
//     Prometheus metrics are exported via the metrics middleware and /metrics handler.
//
// Quick checklist:
//   - Configure env vars: SITESCAN_DATABASE_DSN (memory store when empty), SITESCAN_SOURCES_SAM_GOV_API_KEY,
//     SITESCAN_SMTP_USERNAME/PASSWORD, SITESCAN_TWILIO_ACCOUNT_SID/AUTH_TOKEN/FROM, SITESCAN_SCAN_INTERVAL.
//   - Run locally: go run ./cmd/sitescan serve --config config.yaml (or rely solely on env overrides).
//   - One-off runs: sitescan scan --sources sam-gov --skip-alerts; sitescan alerts; sitescan classify --title ...
package main
