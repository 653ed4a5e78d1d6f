// Package api serves the daemon over HTTP.
//
// # Routes
//
// The router is built with chi. Everything under /api requires the bearer
// token when one is configured; /metrics is always open.
//
//	GET    /api/health              liveness probe
//	GET    /api/status              daemon summary
//	GET    /api/jobs                every job record
//	POST   /api/jobs                submit a flow (YAML text in the body)
//	GET    /api/jobs/{id}           one job record
//	DELETE /api/jobs/{id}           forget a finished job
//	POST   /api/jobs/{id}/end       graceful termination
//	POST   /api/jobs/{id}/kill      forced termination
//	GET    /api/queues              queue registry snapshot
//	POST   /api/queues/{name}/rename
//	GET    /api/logs                recent daemon log events
//	GET    /api/events              websocket stream of job notifications
//	GET    /metrics                 prometheus exposition
//
// # Events
//
// A websocket subscriber first receives one job record per known job and
// then every status change, issue, requeue and output chunk as JSON frames
// shaped like notify.Message.
//
// # Errors
//
// Failures are rendered as {"error": "...", "kind": "..."} where kind is the
// services error taxonomy bucket. not_found maps to 404, protocol to 400 and
// everything else to 500.
package api
