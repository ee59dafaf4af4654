package pqkex

// MinTLSVersion names the minimum TLS version a PreferenceSet requires of
// its peer. This core speaks TLS 1.3 exclusively; the field exists because
// spec.md §3 names it as part of PreferenceSet, for callers layering this
// core into a stack that also negotiates TLS 1.2.
type MinTLSVersion uint16

const (
	MinTLSVersion13 MinTLSVersion = 0x0304
)

// PreferenceSet is a named, versioned security policy: an ordered list of
// KEM groups, an ordered list of classical curves, and the hybrid-draft
// revision this policy's owner speaks. Order encodes priority — index 0 is
// most preferred. PreferenceSet values are immutable once constructed.
type PreferenceSet struct {
	Name                string
	KemGroups           []KemGroup
	Curves              []EcCurve
	HybridDraftRevision uint8
	MinTLSVersion       MinTLSVersion
}

// validate checks the no-duplicate-iana_id invariant from spec.md §3. It is
// not run automatically: neither the named-policy constructors below nor
// Select call it, so a policy with duplicates will only surface as a
// selection-time oddity (the earliest-indexed occurrence wins per spec.md
// §4.3's tie-break rule), not a construction-time error.
func (p PreferenceSet) validate() error {
	seen := make(map[CurveID]bool, len(p.KemGroups)+len(p.Curves))
	for _, g := range p.KemGroups {
		if seen[g.IANAID] {
			return newError(IllegalParameter, "duplicate kem group iana_id in preference set "+p.Name)
		}
		seen[g.IANAID] = true
	}
	seen = make(map[CurveID]bool, len(p.Curves))
	for _, c := range p.Curves {
		if seen[c.IANAID] {
			return newError(IllegalParameter, "duplicate curve iana_id in preference set "+p.Name)
		}
		seen[c.IANAID] = true
	}
	return nil
}

func groupsByID(ids ...CurveID) []KemGroup {
	out := make([]KemGroup, 0, len(ids))
	for _, id := range ids {
		g, ok := groupByIANAID(id)
		if !ok {
			panic("pqkex: internal error: unknown group id in policy table")
		}
		out = append(out, g)
	}
	return out
}

func curvesByID(ids ...CurveID) []EcCurve {
	out := make([]EcCurve, 0, len(ids))
	for _, id := range ids {
		c, ok := curveByIANAID(id)
		if !ok {
			panic("pqkex: internal error: unknown curve id in policy table")
		}
		out = append(out, c)
	}
	return out
}

// DefaultPQ is the current security policy: ML-KEM groups first (the
// standardized hybrid KEMs), then the legacy Kyber-r3 groups for
// interoperability, then classical curves, using the length-prefixed
// (draft-5) hybrid wire format.
func DefaultPQ() PreferenceSet {
	return PreferenceSet{
		Name: "default_pq",
		KemGroups: groupsByID(
			GroupX25519MLKEM768,
			GroupSecP256R1MLKEM768,
			GroupSecP384R1MLKEM1024,
			GroupX25519Kyber768R3,
			GroupSecP256R1Kyber768R3,
		),
		Curves:              AllCurves(),
		HybridDraftRevision: 5,
		MinTLSVersion:       MinTLSVersion13,
	}
}

// Policy20250721 is a dated policy snapshot: a fixed, narrower KEM-group
// ordering pinned for interop testing against a specific peer generation,
// using the length-prefixed wire format.
func Policy20250721() PreferenceSet {
	return PreferenceSet{
		Name: "20250721",
		KemGroups: groupsByID(
			GroupSecP256R1MLKEM768,
			GroupSecP384R1MLKEM1024,
			GroupX25519MLKEM768,
		),
		Curves:              curvesByID(CurveSecP256R1, CurveSecP384R1, CurveX25519, CurveSecP521R1),
		HybridDraftRevision: 5,
		MinTLSVersion:       MinTLSVersion13,
	}
}

// LegacyPQTLS1Draft00 is a legacy policy for interop with peers that only
// implement the draft-00 hybrid encoding (concatenated key shares, no
// ML-KEM groups).
func LegacyPQTLS1Draft00() PreferenceSet {
	return PreferenceSet{
		Name: "PQ-TLS-1-0",
		KemGroups: groupsByID(
			GroupX25519Kyber512R3,
			GroupSecP256R1Kyber512R3,
			GroupSecP256R1Kyber768R3,
			GroupSecP384R1Kyber768R3,
			GroupSecP521R1Kyber1024R3,
			GroupX25519Kyber768R3,
		),
		Curves:              AllCurves(),
		HybridDraftRevision: 0,
		MinTLSVersion:       MinTLSVersion13,
	}
}

// ClassicalOnly is a policy with no KEM groups at all: pure ECDHE, for
// peers or tests that want to force classical selection.
func ClassicalOnly() PreferenceSet {
	return PreferenceSet{
		Name:                "classical_only",
		KemGroups:           nil,
		Curves:              AllCurves(),
		HybridDraftRevision: 0,
		MinTLSVersion:       MinTLSVersion13,
	}
}

// PolicyCatalog returns every named policy this package ships, keyed by
// PreferenceSet.Name, for callers that select a policy by configuration
// string rather than by Go identifier.
func PolicyCatalog() map[string]PreferenceSet {
	policies := []PreferenceSet{DefaultPQ(), Policy20250721(), LegacyPQTLS1Draft00(), ClassicalOnly()}
	catalog := make(map[string]PreferenceSet, len(policies))
	for _, p := range policies {
		catalog[p.Name] = p
	}
	return catalog
}
