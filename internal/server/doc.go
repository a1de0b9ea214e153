// Package server implements the relay: it accepts connections, runs the
// two-step handshake, routes records between sessions and groups, and
// reassembles chunked file transfers.
//
// The implementation is organized into files for configuration, the hub and
// its directory broadcasts, per-connection clients, record routing, and the
// optional HTTP gateway.
package server
