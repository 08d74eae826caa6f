// Package `relaycli` implements interactive console client for relay server.
//
// Lines typed into stdin are sent to the server as is,
// everything received from the server is printed to stdout
// with sender address highlighted.
//
//	go run . -addr 127.0.0.1:12345
package main
