package pqkex

import (
	"bytes"
	"testing"
)

// driveHandshake runs a full client/server negotiation, forwarding each
// side's canonical transcript bytes to the other exactly as a real caller
// wiring this package to a transport would, and returns both sides' final
// derived secrets.
func driveHandshake(t *testing.T, clientPrefs, serverPrefs PreferenceSet) (clientFinished *ClientFinished, serverHello ServerHelloOut) {
	t.Helper()

	client := NewClientHandshake(DefaultRegistry, clientPrefs, "sha256", nil)
	server := NewServerHandshake(DefaultRegistry, serverPrefs, "sha256", nil)

	ch1, err := client.Start()
	if err != nil {
		t.Fatalf("client.Start() error = %v", err)
	}

	sh1, err := server.ProcessClientHello(ClientHelloIn{
		SupportedGroups:     ch1.SupportedGroups,
		KeyShares:           ch1.KeyShares,
		HybridDraftRevision: ch1.HybridDraftRevision,
		Raw:                 ch1.Raw,
	})
	if err != nil {
		t.Fatalf("server.ProcessClientHello() error = %v", err)
	}

	if !sh1.IsHRR {
		_, finished, err := client.ProcessServerMessage(ServerMessageIn{
			SelectedGroup: sh1.SelectedGroup,
			KeyShare:      sh1.KeyShare,
			Raw:           sh1.Raw,
		})
		if err != nil {
			t.Fatalf("client.ProcessServerMessage(ServerHello) error = %v", err)
		}
		return finished, sh1
	}

	ch2, _, err := client.ProcessServerMessage(ServerMessageIn{
		IsHRR:         true,
		SelectedGroup: sh1.SelectedGroup,
	})
	if err != nil {
		t.Fatalf("client.ProcessServerMessage(HRR) error = %v", err)
	}

	sh2, err := server.ProcessSecondClientHello(ClientHelloIn{
		SupportedGroups:     ch2.SupportedGroups,
		KeyShares:           ch2.KeyShares,
		HybridDraftRevision: ch2.HybridDraftRevision,
		Raw:                 ch2.Raw,
	})
	if err != nil {
		t.Fatalf("server.ProcessSecondClientHello() error = %v", err)
	}
	if sh2.IsHRR {
		t.Fatal("server sent a second HelloRetryRequest; state machine should not loop back to SEND_HRR")
	}

	_, finished, err := client.ProcessServerMessage(ServerMessageIn{
		SelectedGroup: sh2.SelectedGroup,
		KeyShare:      sh2.KeyShare,
		Raw:           sh2.Raw,
	})
	if err != nil {
		t.Fatalf("client.ProcessServerMessage(ServerHello after HRR) error = %v", err)
	}
	return finished, sh2
}

func assertMatchingSecrets(t *testing.T, got, want DerivedSecrets) {
	t.Helper()
	if !bytes.Equal(got.ExtractSecret, want.ExtractSecret) {
		t.Errorf("ExtractSecret mismatch: client=%x server=%x", got.ExtractSecret, want.ExtractSecret)
	}
	if !bytes.Equal(got.ClientHandshakeSecret, want.ClientHandshakeSecret) {
		t.Errorf("ClientHandshakeSecret mismatch: client=%x server=%x", got.ClientHandshakeSecret, want.ClientHandshakeSecret)
	}
	if !bytes.Equal(got.ServerHandshakeSecret, want.ServerHandshakeSecret) {
		t.Errorf("ServerHandshakeSecret mismatch: client=%x server=%x", got.ServerHandshakeSecret, want.ServerHandshakeSecret)
	}
	if isAllZero(got.ExtractSecret) || isAllZero(got.ClientHandshakeSecret) || isAllZero(got.ServerHandshakeSecret) {
		t.Error("derived secrets contain an all-zero field")
	}
}

// Both sides offer and prefer the identical hybrid group; the 1-RTT fast
// path should complete the handshake with no HelloRetryRequest.
func TestHandshakeFastPathNoHRR(t *testing.T) {
	clientPrefs := prefSet("client", 0, []CurveID{GroupX25519Kyber512R3}, nil)
	serverPrefs := prefSet("server", 0, []CurveID{GroupX25519Kyber512R3}, nil)

	finished, sh := driveHandshake(t, clientPrefs, serverPrefs)
	if sh.Raw == nil {
		t.Error("completed ServerHello carries no transcript-hash contribution")
	}
	if !finished.Negotiated.IsHybrid() || finished.Negotiated.Group().IANAID != GroupX25519Kyber512R3 {
		t.Errorf("Negotiated = %+v, want hybrid x25519+kyber512r3", finished.Negotiated)
	}
	assertMatchingSecrets(t, finished.Derived, sh.Derived)
}

// The client's top choice isn't supported by the server; the server's own
// preference order rediscovers a mutual group the client listed but did not
// attach a key share for, forcing exactly one HelloRetryRequest round trip.
func TestHandshakeHRRRoundTrip(t *testing.T) {
	clientPrefs := prefSet("client", 0,
		[]CurveID{GroupX25519Kyber512R3, GroupSecP256R1Kyber768R3}, nil)
	serverPrefs := prefSet("server", 0, []CurveID{GroupSecP256R1Kyber768R3}, nil)

	finished, sh := driveHandshake(t, clientPrefs, serverPrefs)
	if !finished.Negotiated.IsHybrid() || finished.Negotiated.Group().IANAID != GroupSecP256R1Kyber768R3 {
		t.Errorf("Negotiated = %+v, want hybrid secp256r1+kyber768r3 after HRR", finished.Negotiated)
	}
	assertMatchingSecrets(t, finished.Derived, sh.Derived)
}

// ML-KEM groups under hybrid_draft_revision 5 use the length-prefixed wire
// format end to end and still complete in one round trip when both sides
// agree.
func TestHandshakeMLKEMFastPathLenPrefixed(t *testing.T) {
	clientPrefs := prefSet("client", 5, []CurveID{GroupX25519MLKEM768}, nil)
	serverPrefs := prefSet("server", 5, []CurveID{GroupX25519MLKEM768}, nil)

	finished, sh := driveHandshake(t, clientPrefs, serverPrefs)
	if !finished.Negotiated.IsHybrid() || !finished.Negotiated.LenPrefixed() {
		t.Errorf("Negotiated = %+v, want length-prefixed hybrid selection", finished.Negotiated)
	}
	assertMatchingSecrets(t, finished.Derived, sh.Derived)
}

// A classical-only negotiation (no mutual KEM group at all) still completes
// and derives matching secrets.
func TestHandshakeClassicalOnlyFastPath(t *testing.T) {
	clientPrefs := prefSet("client", 0, nil, []CurveID{CurveX25519})
	serverPrefs := prefSet("server", 0, nil, []CurveID{CurveX25519})

	finished, sh := driveHandshake(t, clientPrefs, serverPrefs)
	if !finished.Negotiated.IsClassical() || finished.Negotiated.Curve().IANAID != CurveX25519 {
		t.Errorf("Negotiated = %+v, want classical x25519", finished.Negotiated)
	}
	assertMatchingSecrets(t, finished.Derived, sh.Derived)
}

func TestServerProcessClientHelloRejectsWrongState(t *testing.T) {
	server := NewServerHandshake(DefaultRegistry, DefaultPQ(), "sha256", nil)
	server.ctx.State = StateAwaitingFinished

	_, err := server.ProcessClientHello(ClientHelloIn{SupportedGroups: []CurveID{CurveX25519}})
	if err == nil {
		t.Fatal("ProcessClientHello in the wrong state = nil error, want IllegalParameter")
	}
	if server.ctx.State != StateAborted {
		t.Errorf("state after rejected ClientHello = %v, want StateAborted", server.ctx.State)
	}
}

func TestServerProcessSecondClientHelloRejectsMissingKeyShare(t *testing.T) {
	clientPrefs := prefSet("client", 0,
		[]CurveID{GroupX25519Kyber512R3, GroupSecP256R1Kyber768R3}, nil)
	serverPrefs := prefSet("server", 0, []CurveID{GroupSecP256R1Kyber768R3}, nil)

	client := NewClientHandshake(DefaultRegistry, clientPrefs, "sha256", nil)
	server := NewServerHandshake(DefaultRegistry, serverPrefs, "sha256", nil)

	ch1, err := client.Start()
	if err != nil {
		t.Fatalf("client.Start() error = %v", err)
	}
	sh1, err := server.ProcessClientHello(ClientHelloIn{
		SupportedGroups:     ch1.SupportedGroups,
		KeyShares:           ch1.KeyShares,
		HybridDraftRevision: ch1.HybridDraftRevision,
		Raw:                 ch1.Raw,
	})
	if err != nil {
		t.Fatalf("server.ProcessClientHello() error = %v", err)
	}
	if !sh1.IsHRR {
		t.Fatal("test setup: expected this configuration to require an HRR")
	}

	_, err = server.ProcessSecondClientHello(ClientHelloIn{
		SupportedGroups: []CurveID{GroupSecP256R1Kyber768R3},
		KeyShares:       nil, // client withheld the requested share again
	})
	if err == nil {
		t.Fatal("ProcessSecondClientHello with no key share = nil error, want IllegalParameter")
	}
}

func TestDummyChangeCipherSpecRecordIsSingleByte(t *testing.T) {
	if got := DummyChangeCipherSpecRecord(); len(got) != 1 {
		t.Errorf("DummyChangeCipherSpecRecord() = %v, want a single-byte payload", got)
	}
}
