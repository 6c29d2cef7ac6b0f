// Package server exposes the chat hub to the network.
//
// The TCP acceptor frames raw streams into lines for the hub. The HTTP side
// serves a health check, a JSON stats snapshot and a WebSocket bridge that
// runs the same line protocol over text frames. Configuration is read from
// the environment.
package server
