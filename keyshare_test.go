package pqkex

import (
	"bytes"
	"testing"
)

func TestClassicalKeyShareRoundTrip(t *testing.T) {
	sel := SelectedClassical(curveX25519)

	clientPayload, state, err := GenerateClientKeyShare(DefaultECDHProvider, nil, sel)
	if err != nil {
		t.Fatalf("GenerateClientKeyShare() error = %v", err)
	}

	serverPayload, serverSecret, err := RespondKeyShare(DefaultECDHProvider, nil, sel, clientPayload)
	if err != nil {
		t.Fatalf("RespondKeyShare() error = %v", err)
	}

	clientSecret, err := FinishClientKeyShare(state, serverPayload)
	if err != nil {
		t.Fatalf("FinishClientKeyShare() error = %v", err)
	}

	if !bytes.Equal(clientSecret, serverSecret) {
		t.Errorf("secrets differ: client=%x server=%x", clientSecret, serverSecret)
	}
	if isAllZero(clientSecret) {
		t.Error("classical secret is all-zero")
	}
}

func TestHybridKeyShareRoundTrip(t *testing.T) {
	for _, groupID := range []CurveID{GroupX25519Kyber512R3, GroupSecP256R1MLKEM768, GroupSecP384R1MLKEM1024} {
		group := mustGroup(t, groupID)
		for _, lenPrefixed := range []bool{false, true} {
			sel := SelectedHybrid(group, lenPrefixed)
			t.Run(group.Name, func(t *testing.T) {
				clientPayload, state, err := GenerateClientKeyShare(DefaultECDHProvider, nil, sel)
				if err != nil {
					t.Fatalf("GenerateClientKeyShare() error = %v", err)
				}

				serverPayload, serverSecret, err := RespondKeyShare(DefaultECDHProvider, nil, sel, clientPayload)
				if err != nil {
					t.Fatalf("RespondKeyShare() error = %v", err)
				}

				clientSecret, err := FinishClientKeyShare(state, serverPayload)
				if err != nil {
					t.Fatalf("FinishClientKeyShare() error = %v", err)
				}

				if !bytes.Equal(clientSecret, serverSecret) {
					t.Errorf("combined secrets differ: client=%x server=%x", clientSecret, serverSecret)
				}

				// The classical component is one ECDH output on this curve,
				// which is shorter than the curve's public key encoding.
				other, err := DefaultECDHProvider.GenerateKey(group.Curve)
				if err != nil {
					t.Fatalf("GenerateKey() error = %v", err)
				}
				classicalSecret, err := state.classical.ECDH(other.PublicKeyBytes())
				if err != nil {
					t.Fatalf("ECDH() error = %v", err)
				}
				classicalLen := len(classicalSecret)
				if len(clientSecret) <= classicalLen {
					t.Errorf("combined secret length %d too short to contain a KEM component past %d classical bytes", len(clientSecret), classicalLen)
				}
			})
		}
	}
}

func TestGenerateClientKeyShareRejectsUnsetSelection(t *testing.T) {
	var unset Selected
	if _, _, err := GenerateClientKeyShare(DefaultECDHProvider, nil, unset); err == nil {
		t.Error("GenerateClientKeyShare(unset) = nil error, want IllegalParameter")
	}
}

func TestFinishClientKeyShareRejectsNilState(t *testing.T) {
	if _, err := FinishClientKeyShare(nil, []byte("x")); err == nil {
		t.Error("FinishClientKeyShare(nil, ...) = nil error, want IllegalParameter")
	}
}

func TestCombineSecretsOrdersClassicalBeforeKem(t *testing.T) {
	classical := []byte("classical-part")
	kem := []byte("kem-part")
	got := combineSecrets(classical, kem)
	if !bytes.HasPrefix(got, classical) {
		t.Errorf("combineSecrets() = %x, want classical component first", got)
	}
	if !bytes.HasSuffix(got, kem) {
		t.Errorf("combineSecrets() = %x, want KEM component last", got)
	}
}
