// Package snapshot synchronizes entity and player state between a
// simulation and its peers with delta-compressed frames.
//
// The authoritative side calls Capture every tick to record the world
// into a ring of recent frames, then CreateDelta per peer to encode the
// newest frame against whatever that peer last acknowledged. The
// receiving side feeds packets through ResolveDelta, which rebuilds the
// frame into its own ring, applies the changes to the local world, and
// returns the acks to send back.
//
// Frame ids are 14 bits and wrap. A base that falls a full ring behind
// is evicted; affected slots are then resent in full, so the protocol
// tolerates any amount of packet loss at the cost of bandwidth.
package snapshot
