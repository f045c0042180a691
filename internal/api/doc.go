// Package api hosts the HTTP server for a running reading progress session.
// Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/state and /v1/containers to inspect the tracker.
//   - POST /v1/containers/rescan and DELETE /v1/containers[/{container_id}]
//     to change what is tracked.
//   - PUT /v1/viewport and POST /v1/viewport/scroll to drive the page when
//     a viewport is attached.
//   - GET /v1/stream to receive every update over a websocket.
package api
