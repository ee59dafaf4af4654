package pqkex

import (
	"bytes"
	"testing"
)

func TestKeyShareEntryRoundTrip(t *testing.T) {
	want, err := EncodeKeyShareEntry(GroupX25519Kyber512R3, []byte("some public key bytes"))
	if err != nil {
		t.Fatalf("EncodeKeyShareEntry() error = %v", err)
	}
	got, err := DecodeKeyShareEntry(want)
	if err != nil {
		t.Fatalf("DecodeKeyShareEntry() error = %v", err)
	}
	if got.Group != GroupX25519Kyber512R3 || !bytes.Equal(got.KeyExchange, []byte("some public key bytes")) {
		t.Errorf("DecodeKeyShareEntry() = %+v", got)
	}
}

func TestDecodeKeyShareEntryRejectsTrailingBytes(t *testing.T) {
	valid, _ := EncodeKeyShareEntry(GroupX25519Kyber512R3, []byte("x"))
	if _, err := DecodeKeyShareEntry(append(valid, 0xff)); err == nil {
		t.Error("DecodeKeyShareEntry with trailing byte = nil error, want DecodeError")
	}
}

func TestSupportedGroupsRoundTrip(t *testing.T) {
	want := []CurveID{GroupX25519MLKEM768, CurveX25519, CurveSecP256R1}
	raw, err := EncodeSupportedGroups(want)
	if err != nil {
		t.Fatalf("EncodeSupportedGroups() error = %v", err)
	}
	got, err := DecodeSupportedGroups(raw)
	if err != nil {
		t.Fatalf("DecodeSupportedGroups() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("DecodeSupportedGroups() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DecodeSupportedGroups()[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestKeyShareListRoundTrip(t *testing.T) {
	want := []KeyShareEntry{
		{Group: GroupX25519MLKEM768, KeyExchange: []byte("abc")},
		{Group: CurveSecP256R1, KeyExchange: []byte("defgh")},
	}
	raw, err := EncodeKeyShareList(want)
	if err != nil {
		t.Fatalf("EncodeKeyShareList() error = %v", err)
	}
	got, err := DecodeKeyShareList(raw)
	if err != nil {
		t.Fatalf("DecodeKeyShareList() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("DecodeKeyShareList() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i].Group != want[i].Group || !bytes.Equal(got[i].KeyExchange, want[i].KeyExchange) {
			t.Errorf("DecodeKeyShareList()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHybridKeyExchangeConcatenatedRoundTrip(t *testing.T) {
	classical := bytes.Repeat([]byte{0xAA}, 32)
	kemPart := bytes.Repeat([]byte{0xBB}, 800)

	payload, err := EncodeHybridKeyExchange(false, classical, kemPart)
	if err != nil {
		t.Fatalf("EncodeHybridKeyExchange() error = %v", err)
	}
	split, err := DecodeHybridKeyExchange(false, payload, 32)
	if err != nil {
		t.Fatalf("DecodeHybridKeyExchange() error = %v", err)
	}
	if !bytes.Equal(split.Classical, classical) || !bytes.Equal(split.KemPart, kemPart) {
		t.Errorf("DecodeHybridKeyExchange() = %+v", split)
	}
}

func TestHybridKeyExchangeLengthPrefixedRoundTrip(t *testing.T) {
	classical := bytes.Repeat([]byte{0xCC}, 65)
	kemPart := bytes.Repeat([]byte{0xDD}, 1088)

	payload, err := EncodeHybridKeyExchange(true, classical, kemPart)
	if err != nil {
		t.Fatalf("EncodeHybridKeyExchange() error = %v", err)
	}
	// classicalLen is irrelevant for the length-prefixed format; pass a
	// deliberately wrong value to prove it's ignored.
	split, err := DecodeHybridKeyExchange(true, payload, 999)
	if err != nil {
		t.Fatalf("DecodeHybridKeyExchange() error = %v", err)
	}
	if !bytes.Equal(split.Classical, classical) || !bytes.Equal(split.KemPart, kemPart) {
		t.Errorf("DecodeHybridKeyExchange() = %+v", split)
	}
}

func TestExportImportConnectionRoundTrip(t *testing.T) {
	sel := SelectedHybrid(mustGroup(t, GroupX25519MLKEM768), false)
	classicalShare := []byte("classical-share")
	ciphertext := []byte("kem-ciphertext")
	secret := []byte("derived-secret")
	digest := []byte("transcript-digest")

	blob, err := ExportConnection(sel, classicalShare, ciphertext, secret, digest)
	if err != nil {
		t.Fatalf("ExportConnection() error = %v", err)
	}

	groupID, lenPrefixed, gotClassical, gotCiphertext, gotSecret, gotDigest, err := ImportConnection(blob)
	if err != nil {
		t.Fatalf("ImportConnection() error = %v", err)
	}
	if groupID != GroupX25519MLKEM768 {
		t.Errorf("groupID = %#x, want %#x", groupID, GroupX25519MLKEM768)
	}
	if lenPrefixed {
		t.Error("lenPrefixed = true, want false")
	}
	if !bytes.Equal(gotClassical, classicalShare) || !bytes.Equal(gotCiphertext, ciphertext) ||
		!bytes.Equal(gotSecret, secret) || !bytes.Equal(gotDigest, digest) {
		t.Error("ImportConnection did not round-trip all fields")
	}
}

func TestImportConnectionRejectsBadFormatVersion(t *testing.T) {
	sel := SelectedClassical(curveX25519)
	blob, err := ExportConnection(sel, []byte("x"), nil, []byte("y"), []byte("z"))
	if err != nil {
		t.Fatalf("ExportConnection() error = %v", err)
	}
	blob[0] = 0xff // corrupt the format version byte
	if _, _, _, _, _, _, err := ImportConnection(blob); err == nil {
		t.Error("ImportConnection with bad format version = nil error, want IllegalParameter")
	}
}
