package pqkex

import "testing"

func TestNamedPoliciesValidate(t *testing.T) {
	for _, p := range []PreferenceSet{DefaultPQ(), Policy20250721(), LegacyPQTLS1Draft00(), ClassicalOnly()} {
		if err := p.validate(); err != nil {
			t.Errorf("%s: validate() = %v, want nil", p.Name, err)
		}
	}
}

func TestValidateRejectsDuplicateGroupID(t *testing.T) {
	p := PreferenceSet{
		Name:      "broken",
		KemGroups: groupsByID(GroupX25519Kyber512R3, GroupX25519Kyber512R3),
	}
	err := p.validate()
	if err == nil {
		t.Fatal("validate() = nil, want an IllegalParameter error for duplicate iana_id")
	}
	var negErr *NegotiationError
	if ne, ok := err.(*NegotiationError); ok {
		negErr = ne
	} else {
		t.Fatalf("validate() returned %T, want *NegotiationError", err)
	}
	if negErr.Kind != IllegalParameter {
		t.Errorf("validate() kind = %v, want IllegalParameter", negErr.Kind)
	}
}

func TestPolicyCatalogKeyedByName(t *testing.T) {
	catalog := PolicyCatalog()
	for _, name := range []string{"default_pq", "20250721", "PQ-TLS-1-0", "classical_only"} {
		if _, ok := catalog[name]; !ok {
			t.Errorf("PolicyCatalog missing entry %q", name)
		}
	}
}

func TestClassicalOnlyHasNoKemGroups(t *testing.T) {
	p := ClassicalOnly()
	if len(p.KemGroups) != 0 {
		t.Errorf("ClassicalOnly has %d KEM groups, want 0", len(p.KemGroups))
	}
	if len(p.Curves) == 0 {
		t.Error("ClassicalOnly has no curves at all")
	}
}
