package pqkex

import (
	syntax "github.com/cisco/go-tls-syntax"
	"golang.org/x/crypto/cryptobyte"
)

// KeyShareEntry is the wire structure carried in the key_share extension,
// grounded on the KeyShareEntry layout of RFC 8446 §4.2.8. It is encoded
// directly with cryptobyte rather than go-tls-syntax struct tags, matching
// how handshake_messages.go-style code hand-rolls its own extension-level
// framing rather than running every wire structure through
// one generic marshaler; go-tls-syntax is reserved below for the
// serializedConnection blob, where its struct-tag style fits more directly.
type KeyShareEntry struct {
	Group       CurveID
	KeyExchange []byte
}

func (e KeyShareEntry) marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16(uint16(e.Group))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(e.KeyExchange)
	})
	return b.Bytes()
}

func unmarshalKeyShareEntry(s *cryptobyte.String) (KeyShareEntry, bool) {
	var group uint16
	var ke cryptobyte.String
	if !s.ReadUint16(&group) || !s.ReadUint16LengthPrefixed(&ke) {
		return KeyShareEntry{}, false
	}
	return KeyShareEntry{Group: CurveID(group), KeyExchange: []byte(ke)}, true
}

// EncodeKeyShareEntry encodes a single KeyShareEntry for the key_share
// extension's KeyShareClientHello/KeyShareServerHello list.
func EncodeKeyShareEntry(group CurveID, keyExchange []byte) ([]byte, error) {
	out, err := KeyShareEntry{Group: group, KeyExchange: keyExchange}.marshal()
	if err != nil {
		return nil, wrapError(CryptoFailure, "encoding key share entry", err)
	}
	return out, nil
}

// DecodeKeyShareEntry decodes a single KeyShareEntry. raw must hold exactly
// one entry; trailing bytes are a DecodeError.
func DecodeKeyShareEntry(raw []byte) (KeyShareEntry, error) {
	s := cryptobyte.String(raw)
	e, ok := unmarshalKeyShareEntry(&s)
	if !ok || len(s) != 0 {
		return KeyShareEntry{}, newError(DecodeError, "malformed key share entry")
	}
	return e, nil
}

// EncodeSupportedGroups encodes the supported_groups extension body: a
// 2-byte-length-prefixed list of u16 group ids, per RFC 8446 §4.2.7,
// carrying both classical curve and hybrid KEM-group ids in one list as
// spec.md §6 specifies.
func EncodeSupportedGroups(groups []CurveID) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, g := range groups {
			b.AddUint16(uint16(g))
		}
	})
	out, err := b.Bytes()
	if err != nil {
		return nil, wrapError(CryptoFailure, "encoding supported_groups", err)
	}
	return out, nil
}

// DecodeSupportedGroups reverses EncodeSupportedGroups.
func DecodeSupportedGroups(raw []byte) ([]CurveID, error) {
	s := cryptobyte.String(raw)
	var list cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&list) || len(s) != 0 {
		return nil, newError(DecodeError, "malformed supported_groups extension")
	}
	var groups []CurveID
	for !list.Empty() {
		var id uint16
		if !list.ReadUint16(&id) {
			return nil, newError(DecodeError, "malformed supported_groups entry")
		}
		groups = append(groups, CurveID(id))
	}
	return groups, nil
}

// EncodeKeyShareList encodes the key_share extension body for a
// ClientHello: a 2-byte-length-prefixed list of KeyShareEntry values.
func EncodeKeyShareList(entries []KeyShareEntry) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, e := range entries {
			b.AddUint16(uint16(e.Group))
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(e.KeyExchange)
			})
		}
	})
	out, err := b.Bytes()
	if err != nil {
		return nil, wrapError(CryptoFailure, "encoding key_share list", err)
	}
	return out, nil
}

// DecodeKeyShareList reverses EncodeKeyShareList.
func DecodeKeyShareList(raw []byte) ([]KeyShareEntry, error) {
	s := cryptobyte.String(raw)
	var list cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&list) || len(s) != 0 {
		return nil, newError(DecodeError, "malformed key_share extension")
	}
	var entries []KeyShareEntry
	for !list.Empty() {
		e, ok := unmarshalKeyShareEntry(&list)
		if !ok {
			return nil, newError(DecodeError, "malformed key_share entry")
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// hybridKeyExchangeSplit is the classical-half/kem-half split of a hybrid
// key_exchange payload, used by both the encoder (to build one) and the
// decoder (to tear one apart).
type hybridKeyExchangeSplit struct {
	Classical []byte
	KemPart   []byte
}

// EncodeHybridKeyExchange combines a classical ECDH public key and a KEM
// public key (or ciphertext) into the single opaque key_exchange payload a
// hybrid KeyShareEntry carries, per spec.md §3's two wire formats:
//
// draft-0 is a bare concatenation, classical bytes first, decodable only
// because both sides already know each fixed-length component's size from
// the negotiated group. draft-5 prefixes each component with its own
// 2-byte length, the format this package's Selected.LenPrefixed reports
// when true, matching cfkem.go's hybrid handling for the draft-00 groups
// versus the length-prefixed ML-KEM groups.
func EncodeHybridKeyExchange(lenPrefixed bool, classical, kemPart []byte) ([]byte, error) {
	if !lenPrefixed {
		out := make([]byte, 0, len(classical)+len(kemPart))
		out = append(out, classical...)
		out = append(out, kemPart...)
		return out, nil
	}
	var b cryptobyte.Builder
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(classical) })
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(kemPart) })
	out, err := b.Bytes()
	if err != nil {
		return nil, wrapError(CryptoFailure, "encoding hybrid key exchange payload", err)
	}
	return out, nil
}

// DecodeHybridKeyExchange splits a hybrid key_exchange payload back into its
// classical and KEM components. For the draft-0 concatenated format, the
// caller must supply the expected classical component length (fixed by the
// negotiated curve); draft-5's length prefixes are self-describing.
func DecodeHybridKeyExchange(lenPrefixed bool, payload []byte, classicalLen int) (hybridKeyExchangeSplit, error) {
	if !lenPrefixed {
		if len(payload) <= classicalLen {
			return hybridKeyExchangeSplit{}, newError(DecodeError, "hybrid payload too short for classical component")
		}
		return hybridKeyExchangeSplit{
			Classical: payload[:classicalLen],
			KemPart:   payload[classicalLen:],
		}, nil
	}

	s := cryptobyte.String(payload)
	var classical, kemPart cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&classical) || !s.ReadUint16LengthPrefixed(&kemPart) || len(s) != 0 {
		return hybridKeyExchangeSplit{}, newError(DecodeError, "malformed length-prefixed hybrid payload")
	}
	return hybridKeyExchangeSplit{Classical: []byte(classical), KemPart: []byte(kemPart)}, nil
}

// serializedConnection is the exported/resumable connection-state blob
// named in spec.md §6, grounded on s2n's s2n_connection_serialize.h fixed
// record layout and encoded with go-tls-syntax the same way ECH structures
// are encoded elsewhere in this stack, rather than a bespoke binary.Write
// layout.
type serializedConnection struct {
	FormatVersion    uint8
	SelectedGroup    uint16
	LenPrefixed      uint8 // 0 or 1; go-tls-syntax has no bool primitive
	ClassicalShare   []byte `tls:"head=2"`
	KemCiphertext    []byte `tls:"head=2"`
	DerivedSecret    []byte `tls:"head=2"`
	TranscriptDigest []byte `tls:"head=1"`
}

const serializedConnectionFormatVersion = 1

// ExportConnection serializes the negotiated state of a completed handshake
// into a transferable blob, for the connection-serialization use case s2n
// supports (handoff to another process after the handshake completes).
func ExportConnection(sel Selected, classicalShare, kemCiphertext, derivedSecret, transcriptDigest []byte) ([]byte, error) {
	groupID := uint16(0)
	if sel.IsHybrid() {
		groupID = uint16(sel.Group().IANAID)
	} else if sel.IsClassical() {
		groupID = uint16(sel.Curve().IANAID)
	}
	lenPrefixed := uint8(0)
	if sel.IsHybrid() && sel.LenPrefixed() {
		lenPrefixed = 1
	}
	sc := serializedConnection{
		FormatVersion:    serializedConnectionFormatVersion,
		SelectedGroup:    groupID,
		LenPrefixed:      lenPrefixed,
		ClassicalShare:   classicalShare,
		KemCiphertext:    kemCiphertext,
		DerivedSecret:    derivedSecret,
		TranscriptDigest: transcriptDigest,
	}
	out, err := syntax.Marshal(sc)
	if err != nil {
		return nil, wrapError(CryptoFailure, "serializing connection state", err)
	}
	return out, nil
}

// ImportConnection reverses ExportConnection. It returns IllegalParameter if
// the blob's format version doesn't match this build's, per spec.md §7's
// grouping of malformed-peer-input conditions.
func ImportConnection(blob []byte) (groupID CurveID, lenPrefixed bool, classicalShare, kemCiphertext, derivedSecret, transcriptDigest []byte, err error) {
	var sc serializedConnection
	if _, uerr := syntax.Unmarshal(blob, &sc); uerr != nil {
		return 0, false, nil, nil, nil, nil, newError(DecodeError, "malformed serialized connection blob")
	}
	if sc.FormatVersion != serializedConnectionFormatVersion {
		return 0, false, nil, nil, nil, nil, newError(IllegalParameter, "unsupported serialized connection format version")
	}
	return CurveID(sc.SelectedGroup), sc.LenPrefixed == 1, sc.ClassicalShare, sc.KemCiphertext, sc.DerivedSecret, sc.TranscriptDigest, nil
}
