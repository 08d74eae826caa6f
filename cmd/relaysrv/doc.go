// Package `relaysrv` implements server application for text relay over TCP.
//
// Every chunk of bytes received from any client is prefixed with the sender IP
// and broadcast to all connected clients, the sender included.
//
// To compile relay server locally, run from package directory:
//
//	go install .
//
// Inject release version at link time:
//
//	go build -ldflags "-X main.buildVersion=1.0.0" .
//
// Or quickly launch server with command:
//
//	go run . -port 12345 -history 10 -metrics 127.0.0.1:9100
package main
