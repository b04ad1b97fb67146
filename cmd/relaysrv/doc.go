// Package `relaysrv` implements server application which relays text lines
// between TCP clients in periodic broadcast packets.
//
// To compile relay server locally, run from package directory:
//
//	go install .
//
// Or quickly launch server with command:
//
//	go run . -addr :50001 -interval 5s
//
// Settings are taken from built-in defaults, then from YAML file given with -config,
// then from .env file and RELAY_* environment variables, and finally from command line flags.
// When -http address is set, the server also exposes /healthz, /metrics and
// /ws endpoint for WebSocket clients.
package main
