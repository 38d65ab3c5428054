// Package server runs the authoritative side of a game session: it
// accepts connections, walks each one through the lobby and loading
// handshake, validates the commands clients report, relays accepted
// commands to everyone else, and streams entity snapshots captured from
// the embedded Game.
//
// The server is tick driven. One goroutine owns all session state and
// advances it at the configured tick rate; sockets do their own
// retransmission in the background. A small HTTP endpoint can be
// enabled for health checks, Prometheus metrics, and save triggers.
package server
