// Package api implements the connector's HTTP server.
//
// This package provides:
//   - One GET route per API query item, dispatching request parameters into
//     the item's SQL template and returning the rows as JSON
//   - System routes: GET / (service info), GET /health, GET /metrics
//     (Prometheus) and GET /ws (telemetry relay over WebSocket)
//   - RS256 token authentication on every route except /health
//   - Middleware stack (request ID, logging, recovery, security headers,
//     CORS, compression)
//
// # Request Flow
//
//	GET /plant/line?line=A
//	  → bind ?line=A into the item template (injection screen optional)
//	  → execute on the shared pool
//	  → 200 {"rows":[...]}
//
// Binding failures answer 400 {"message":"SQL inject data detected."} and
// execution failures answer 500 {"message":"query execution failed"}.
//
// # WebSocket Relay
//
// The Hub implements telemetry.Sink. Clients subscribe to published topics
// (or "*") and receive every telemetry payload as it is published.
package api
