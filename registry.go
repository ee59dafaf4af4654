package pqkex

// CurveID is the IANA-style codepoint identifying a classical ECDHE curve or
// a hybrid KEM group on the wire. Both curves and KEM groups share the same
// id space, mirroring the combined supported_groups/key_share extensions of
// real TLS 1.3.
type CurveID uint16

// Classical curve ids (RFC 8446 §4.2.7 NamedGroup registry).
const (
	CurveSecP256R1 CurveID = 0x0017
	CurveSecP384R1 CurveID = 0x0018
	CurveSecP521R1 CurveID = 0x0019
	CurveX25519    CurveID = 0x001d
)

// Hybrid KEM group ids. The two X25519+Kyber draft-00 ids match the
// teacher's cfkem.go constants; the ML-KEM ids match the IANA TLS
// SupportedGroups assignments; the remaining Kyber-r3 combinations have no
// public codepoint yet and use a private-use range, per SPEC_FULL.md §4.1.
const (
	GroupX25519Kyber512R3    CurveID = 0xFE30
	GroupX25519Kyber768R3    CurveID = 0x6399
	GroupSecP256R1Kyber512R3 CurveID = 0xFE01
	GroupSecP256R1Kyber768R3 CurveID = 0xFE02
	GroupSecP384R1Kyber768R3 CurveID = 0xFE03
	GroupSecP521R1Kyber1024R3 CurveID = 0xFE04
	GroupX25519MLKEM768      CurveID = 0x11EC
	GroupSecP256R1MLKEM768   CurveID = 0x11EB
	GroupSecP384R1MLKEM1024  CurveID = 0x11ED
)

// EcCurve is an immutable record identifying a classical ECDHE curve.
// Identity is IANAID; two EcCurve values with the same id are interchangeable.
type EcCurve struct {
	IANAID CurveID
	Name   string
}

var (
	curveSecP256R1 = EcCurve{CurveSecP256R1, "secp256r1"}
	curveSecP384R1 = EcCurve{CurveSecP384R1, "secp384r1"}
	curveSecP521R1 = EcCurve{CurveSecP521R1, "secp521r1"}
	curveX25519    = EcCurve{CurveX25519, "x25519"}
)

// AllCurves returns the four classical curves this core knows about, in a
// fixed canonical order. Named policies reorder or subset this list; they
// never invent curves outside it.
func AllCurves() []EcCurve {
	return []EcCurve{curveX25519, curveSecP256R1, curveSecP384R1, curveSecP521R1}
}

// kemProvider identifies which crypto-provider adapter (component F)
// implements a KemRef's key generation/encapsulation/decapsulation.
type kemProvider int

const (
	kemProviderCircl kemProvider = iota
	kemProviderMLKEM
)

// KemRef identifies a KEM algorithm and the adapter that implements it. It
// does not itself do any cryptography; see crypto.go for the adapters.
type KemRef struct {
	Name      string
	provider  kemProvider
	circlName string // valid when provider == kemProviderCircl
	mlkemSize int    // 768 or 1024, valid when provider == kemProviderMLKEM
}

var (
	kemKyber512R3  = KemRef{Name: "Kyber512Round3", provider: kemProviderCircl, circlName: "Kyber512"}
	kemKyber768R3  = KemRef{Name: "Kyber768Round3", provider: kemProviderCircl, circlName: "Kyber768"}
	kemKyber1024R3 = KemRef{Name: "Kyber1024Round3", provider: kemProviderCircl, circlName: "Kyber1024"}
	kemMLKEM768    = KemRef{Name: "MLKEM768", provider: kemProviderMLKEM, mlkemSize: 768}
	kemMLKEM1024   = KemRef{Name: "MLKEM1024", provider: kemProviderMLKEM, mlkemSize: 1024}
)

// KemGroup is an immutable record pairing a classical curve with a KEM.
// Identity is IANAID; two KemGroup values are the same group iff their
// IANAID matches, regardless of how they were constructed.
type KemGroup struct {
	IANAID CurveID
	Name   string
	Curve  EcCurve
	Kem    KemRef
}

var allKemGroups = []KemGroup{
	{GroupX25519Kyber512R3, "x25519_kyber-512-r3", curveX25519, kemKyber512R3},
	{GroupX25519Kyber768R3, "x25519_kyber-768-r3", curveX25519, kemKyber768R3},
	{GroupSecP256R1Kyber512R3, "secp256r1_kyber-512-r3", curveSecP256R1, kemKyber512R3},
	{GroupSecP256R1Kyber768R3, "secp256r1_kyber-768-r3", curveSecP256R1, kemKyber768R3},
	{GroupSecP384R1Kyber768R3, "secp384r1_kyber-768-r3", curveSecP384R1, kemKyber768R3},
	{GroupSecP521R1Kyber1024R3, "secp521r1_kyber-1024-r3", curveSecP521R1, kemKyber1024R3},
	{GroupX25519MLKEM768, "x25519_mlkem768", curveX25519, kemMLKEM768},
	{GroupSecP256R1MLKEM768, "secp256r1_mlkem768", curveSecP256R1, kemMLKEM768},
	{GroupSecP384R1MLKEM1024, "secp384r1_mlkem1024", curveSecP384R1, kemMLKEM1024},
}

// AllGroups returns every hybrid KEM group this build knows about, in a
// fixed canonical order, regardless of runtime availability.
func AllGroups() []KemGroup {
	out := make([]KemGroup, len(allKemGroups))
	copy(out, allKemGroups)
	return out
}

func groupByIANAID(id CurveID) (KemGroup, bool) {
	for _, g := range allKemGroups {
		if g.IANAID == id {
			return g, true
		}
	}
	return KemGroup{}, false
}

func curveByIANAID(id CurveID) (EcCurve, bool) {
	for _, c := range AllCurves() {
		if c.IANAID == id {
			return c, true
		}
	}
	return EcCurve{}, false
}

// CapabilityProbe reports which crypto primitives the linked providers make
// available. Component F links every adapter statically, so the default
// probe is a fixed value reporting all three capabilities; it is injectable
// so tests can simulate an older or stripped-down provider. See
// SPEC_FULL.md §4.6.
type CapabilityProbe struct {
	// EVPKEM is true iff the linked provider exposes a generic KEM
	// interface at all.
	EVPKEM bool
	// X25519 is true iff the X25519 ECDH primitive is available.
	X25519 bool
	// MLKEM is true iff the ML-KEM primitive is available.
	MLKEM bool
}

func defaultCapabilityProbe() CapabilityProbe {
	return CapabilityProbe{EVPKEM: true, X25519: true, MLKEM: true}
}

// Registry is the KEM-Group Registry (component A): a static catalog of
// every known group plus an availability predicate computed once from a
// CapabilityProbe. A Registry is immutable after construction and safe for
// concurrent use by any number of connections.
type Registry struct {
	groups []KemGroup
	curves []EcCurve
	probe  CapabilityProbe
}

// NewRegistry builds a Registry against the given capability probe. Most
// callers should use DefaultRegistry; NewRegistry exists so tests can
// disable ML-KEM or X25519 support to reproduce older-provider behavior.
func NewRegistry(probe CapabilityProbe) *Registry {
	return &Registry{groups: AllGroups(), curves: AllCurves(), probe: probe}
}

// DefaultRegistry is the process-wide registry backed by the crypto
// adapters this package actually links against (component F). It is
// initialized once and never mutated.
var DefaultRegistry = NewRegistry(defaultCapabilityProbe())

// AllGroups returns every group the registry knows about, irrespective of
// availability.
func (r *Registry) AllGroups() []KemGroup {
	out := make([]KemGroup, len(r.groups))
	copy(out, r.groups)
	return out
}

// AllCurves returns every classical curve the registry knows about.
func (r *Registry) AllCurves() []EcCurve {
	out := make([]EcCurve, len(r.curves))
	copy(out, r.curves)
	return out
}

// IsAvailable reports whether g can actually be used given this registry's
// capability probe: the provider must expose a generic KEM interface, and,
// for X25519-based groups, X25519 support, and for ML-KEM groups, ML-KEM
// support.
func (r *Registry) IsAvailable(g KemGroup) bool {
	if !r.probe.EVPKEM {
		return false
	}
	if g.Curve.IANAID == CurveX25519 && !r.probe.X25519 {
		return false
	}
	if g.Kem.provider == kemProviderMLKEM && !r.probe.MLKEM {
		return false
	}
	return true
}

// availableGroups filters an ordered group list down to the ones this
// registry reports available, preserving order. Availability is checked
// exactly once per candidate, per spec.md §9's resolution of the
// redundant-check open question.
func (r *Registry) availableGroups(groups []KemGroup) []KemGroup {
	out := make([]KemGroup, 0, len(groups))
	for _, g := range groups {
		if r.IsAvailable(g) {
			out = append(out, g)
		}
	}
	return out
}
