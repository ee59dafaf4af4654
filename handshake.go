package pqkex

import (
	"crypto/sha256"
	"hash"
)

// HandshakeState enumerates the negotiation-relevant phases of spec.md
// §4.4's state diagram. Record-layer and post-key-schedule states
// (EncryptedExtensions, Certificate, Finished) are out of this package's
// scope per spec.md §1, so StateAwaitingFinished stands in for all of
// "...(EE, Cert, Fin)" as a single terminal-adjacent marker a caller's
// record layer takes over from.
type HandshakeState int

const (
	StateExpectClientHello HandshakeState = iota // server init
	StateSendClientHello                          // client init
	StateSelecting
	StateSendHRR
	StateExpectHelloRetryRequestOrServerHello // client, after sending CH1
	StateExpectCH2
	StateSendClientHello2
	StateSelecting2
	StateSendServerHello
	StateDeriveHandshakeSecrets
	StateAwaitingFinished
	StateApplicationData
	StateAborted
)

func (s HandshakeState) String() string {
	switch s {
	case StateExpectClientHello:
		return "EXPECT_CLIENT_HELLO"
	case StateSendClientHello:
		return "SEND_CLIENT_HELLO"
	case StateSelecting:
		return "SELECTING"
	case StateSendHRR:
		return "SEND_HRR"
	case StateExpectHelloRetryRequestOrServerHello:
		return "EXPECT_HRR_OR_SERVER_HELLO"
	case StateExpectCH2:
		return "EXPECT_CH2"
	case StateSendClientHello2:
		return "SEND_CLIENT_HELLO2"
	case StateSelecting2:
		return "SELECTING2"
	case StateSendServerHello:
		return "SEND_SERVER_HELLO"
	case StateDeriveHandshakeSecrets:
		return "DERIVE_HS_SECRETS"
	case StateAwaitingFinished:
		return "AWAITING_FINISHED"
	case StateApplicationData:
		return "APPLICATION_DATA"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Role names which side of the handshake a HandshakeContext drives.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// HandshakeTypeFlags is the bitset spec.md §4.4 asks for, kept separate
// from HandshakeState so "did an HRR happen?" stays an O(1) bit test
// rather than a state-enum comparison that the state machine might move
// past.
type HandshakeTypeFlags uint8

const (
	FlagInitial            HandshakeTypeFlags = 1 << 0
	FlagHelloRetryRequest  HandshakeTypeFlags = 1 << 1
)

// DerivedSecrets holds the key-schedule outputs this package computes from
// the negotiated (EC)DHE secret, named to match spec.md §3/§8 exactly so
// the testable-invariant text ("extract_secret, client_handshake_secret,
// server_handshake_secret") maps onto fields one-to-one.
type DerivedSecrets struct {
	ExtractSecret         []byte
	ClientHandshakeSecret []byte
	ServerHandshakeSecret []byte
}

// Zero overwrites every secret this struct holds, per spec.md §5's teardown
// requirement that secret-bearing memory be explicitly overwritten before
// release.
func (d *DerivedSecrets) Zero() {
	zeroBytes(d.ExtractSecret)
	zeroBytes(d.ClientHandshakeSecret)
	zeroBytes(d.ServerHandshakeSecret)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// transcriptHash is the running RFC 8446 §4.4.1 transcript, with the
// message_hash synthetic-record switch doHelloRetryRequest performs on an
// HRR: the first ClientHello's contribution is collapsed into a single
// digest. Neither driver in this package appends the HelloRetryRequest
// itself to the transcript afterwards.
type transcriptHash struct {
	h hash.Hash
}

func newTranscriptHash() *transcriptHash {
	return &transcriptHash{h: sha256.New()}
}

func (t *transcriptHash) write(msg []byte) { t.h.Write(msg) }

// switchToHRR replaces the running hash with a synthetic message_hash
// record per RFC 8446 §4.4.1: type(254) || 0x00 0x00 len || Hash(transcript
// so far), grounded on doHelloRetryRequest's literal byte sequence
// ([]byte{typeMessageHash, 0, 0, uint8(len(chHash))}).
func (t *transcriptHash) switchToHRR() {
	const typeMessageHash = 254
	sum := t.h.Sum(nil)
	t.h = sha256.New()
	t.h.Write([]byte{typeMessageHash, 0, 0, byte(len(sum))})
	t.h.Write(sum)
}

func (t *transcriptHash) sum() []byte { return t.h.Sum(nil) }

// HandshakeContext is the mutable per-connection state named in spec.md §3.
// It is owned by exactly one ClientHandshake or ServerHandshake for the
// life of one connection attempt and is never shared across connections;
// the immutable Registry and PreferenceSet it references are the only
// state two contexts may legitimately alias. A HandshakeContext is not safe
// for concurrent use by multiple goroutines.
type HandshakeContext struct {
	Role    Role
	State   HandshakeState
	Flags   HandshakeTypeFlags
	Negotiated Selected

	localPrefs PreferenceSet
	registry   *Registry
	transcript *transcriptHash
	sink       EventSink

	peerOfferedGroups []CurveID
	peerKeyShares     map[CurveID][]byte

	derived DerivedSecrets
}

func (hc *HandshakeContext) transition(to HandshakeState) {
	from := hc.State
	hc.State = to
	emit(hc.sink, EventStateTransition{From: from, To: to})
}

func (hc *HandshakeContext) abort(err error) error {
	hc.transition(StateAborted)
	hc.derived.Zero()
	emit(hc.sink, EventHandshakeAborted{Err: err})
	return err
}

// Close tears the context down, overwriting the derived secrets it holds in
// place. The DerivedSecrets values handed out by the drivers share these
// slices and are zeroed with them.
func (hc *HandshakeContext) Close() {
	hc.derived.Zero()
}

// deriveSecrets implements the minimal slice of the RFC 8446 §7.1 key
// schedule spec.md §8's invariants name: Early Secret -> derived ->
// Handshake Secret (spec's extract_secret) -> client/server handshake
// traffic secrets. PSK binders, 0-RTT, and every later-schedule secret are
// out of scope per spec.md §1.
func deriveSecrets(hashName string, dheSecret, transcript []byte) (DerivedSecrets, error) {
	zeroKey, err := HKDFExtract(hashName, nil, nil)
	if err != nil {
		return DerivedSecrets{}, err
	}
	hashLen := len(zeroKey)

	earlySecret, err := HKDFExtract(hashName, make([]byte, hashLen), nil)
	if err != nil {
		return DerivedSecrets{}, err
	}
	emptyHash, err := ExpandLabel(hashName, earlySecret, "derived", emptyTranscriptHash(hashName), hashLen)
	if err != nil {
		return DerivedSecrets{}, err
	}
	extractSecret, err := HKDFExtract(hashName, dheSecret, emptyHash)
	if err != nil {
		return DerivedSecrets{}, err
	}
	clientHS, err := ExpandLabel(hashName, extractSecret, "c hs traffic", transcript, hashLen)
	if err != nil {
		return DerivedSecrets{}, err
	}
	serverHS, err := ExpandLabel(hashName, extractSecret, "s hs traffic", transcript, hashLen)
	if err != nil {
		return DerivedSecrets{}, err
	}
	return DerivedSecrets{ExtractSecret: extractSecret, ClientHandshakeSecret: clientHS, ServerHandshakeSecret: serverHS}, nil
}

// DummyChangeCipherSpecRecord returns the single-byte-payload
// ChangeCipherSpec record TLS 1.3 servers and clients emit for middlebox
// compatibility (RFC 8446 Appendix D.4). Per spec.md §4.4 it does not
// affect the state machine or the transcript hash; a caller's record layer
// sends it once, immediately after ServerHello/HelloRetryRequest on the
// server side, or after reading an HelloRetryRequest and before the second
// ClientHello on the client side, mirroring sendDummyChangeCipherSpec's
// sent-at-most-once behavior.
func DummyChangeCipherSpecRecord() []byte {
	return []byte{0x01}
}

// canonicalClientHelloBytes builds a deterministic encoding of a
// ClientHello's negotiation-relevant extensions, used as that message's
// contribution to the transcript hash on the side that builds it. The peer
// reconstructs an identical encoding from the same structured fields once it
// parses them, so both sides hash the same bytes without this package
// needing to model (or the caller needing to separately invent) a complete
// wire-level ClientHello.
func canonicalClientHelloBytes(groups []CurveID, shares []KeyShareEntry) ([]byte, error) {
	groupBytes, err := EncodeSupportedGroups(groups)
	if err != nil {
		return nil, err
	}
	shareBytes, err := EncodeKeyShareList(shares)
	if err != nil {
		return nil, err
	}
	return append(groupBytes, shareBytes...), nil
}

// canonicalServerHelloBytes is canonicalClientHelloBytes' counterpart for a
// completed (non-HRR) ServerHello.
func canonicalServerHelloBytes(group CurveID, share KeyShareEntry) ([]byte, error) {
	shareBytes, err := EncodeKeyShareEntry(share.Group, share.KeyExchange)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 2, 2+len(shareBytes))
	out[0] = byte(group >> 8)
	out[1] = byte(group)
	return append(out, shareBytes...), nil
}

func emptyTranscriptHash(hashName string) []byte {
	h, err := hashFor(hashName)
	if err != nil {
		return nil
	}
	return h().Sum(nil)
}
