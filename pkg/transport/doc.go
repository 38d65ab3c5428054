// Package transport provides connection-oriented messaging for game
// traffic. The primary transport is raw UDP datagrams with a reliability
// layer on top: payloads sent with EnsureSend are split into fragments,
// resent on a backoff schedule until acknowledged, and reassembled on the
// far side, while Send stays fire-and-forget for state that the next
// frame supersedes anyway.
//
// A loopback transport runs the same datagram path in memory for
// single-process play and tests, and a WebSocket transport carries the
// same payloads over an ordered stream for clients that cannot use UDP.
// All three satisfy Socket, so the layers above never care which one a
// peer arrived on.
package transport
