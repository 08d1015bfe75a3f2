// Package query provides the Query Registry for the SQL Server Connector.
//
// A query item pairs a SQL template with a delivery mode. Items come from
// semicolon-delimited definition strings, either QUERY_* environment
// variables or the queries map in config.yaml:
//
//	api;SELECT * FROM sensors WHERE id = :id;/sensors
//	mqtt;SELECT TOP 1 * FROM readings ORDER BY ts DESC;/readings/latest;5000
//
// The first field selects the mode. API items carry an endpoint; telemetry
// items ("mqtt") carry a topic suffix and a polling interval in milliseconds.
//
// # Key Types
//
//   - Definition: a raw definition string plus the name it was read from
//   - Item: a validated, immutable query item (tagged by Mode)
//   - Registry: the set of items that passed validation
//   - ConfigError: why a single definition was rejected
//
// # Usage
//
//	reg, errs := query.ParseAll(defs, query.WithTemplateCheck(binder.Validate))
//	for _, err := range errs {
//	    log.Error("query definition rejected", "error", err)
//	}
//	for _, item := range reg.APIItems() {
//	    // register route for item.API.Endpoint
//	}
//
// Parsing never panics. A bad definition is reported and excluded; it does
// not prevent the remaining definitions from registering.
package query
