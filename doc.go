// Package pqkex implements the post-quantum hybrid key-exchange negotiation
// core of a TLS 1.3 handshake: the state machine that selects a mutually
// supported KEM group or classical curve between a client and a server,
// decides whether a HelloRetryRequest round trip is required, and derives
// the (EC)DHE input to the TLS 1.3 key schedule from the winning group's
// classical and post-quantum shared secrets.
//
// The package does not implement record-layer framing, certificate
// validation, or AEAD/signature primitives. Those are external
// collaborators, consumed here only through the interfaces in crypto.go.
package pqkex
