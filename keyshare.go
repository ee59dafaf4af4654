package pqkex

// ClientKeyShareState holds the private key material a client retains
// between generating its ClientHello key share and processing the server's
// response. It must not outlive one handshake attempt; a HelloRetryRequest
// that changes the selected group replaces it entirely rather than reusing
// any part of it, per spec.md §4.4's "no key material carries across HRR"
// invariant.
type ClientKeyShareState struct {
	sel       Selected
	classical ECDHPrivateKey
	kem       KEMPrivateKey // nil when sel is classical-only
}

// GenerateClientKeyShare is the initiator half of the Key-Share Exchanger
// (component E). It generates fresh ephemeral key material for the
// selected group — both an ECDH keypair and, for a hybrid selection, a KEM
// keypair — and returns the wire payload to place in the ClientHello's
// key_share extension alongside the retained private state needed to
// finish the exchange once the server responds.
//
// For a hybrid group the KEM keypair is generated here, not encapsulated:
// the client is always the encapsulation target for the PQ half, mirroring
// the classical ECDH pattern where the client's (EC)DHE keypair is also
// something the server computes against rather than generates itself.
func GenerateClientKeyShare(ecdhProvider ECDHProvider, kemProviderOverride KEMProvider, sel Selected) ([]byte, *ClientKeyShareState, error) {
	if !sel.IsSet() {
		return nil, nil, newError(IllegalParameter, "cannot generate a key share for an unset selection")
	}

	curve := sel.Curve()
	if sel.IsHybrid() {
		curve = sel.Group().Curve
	}
	classicalKey, err := ecdhProvider.GenerateKey(curve)
	if err != nil {
		return nil, nil, err
	}

	state := &ClientKeyShareState{sel: sel, classical: classicalKey}

	if sel.IsClassical() {
		return classicalKey.PublicKeyBytes(), state, nil
	}

	kemP := kemProviderOverride
	if kemP == nil {
		kemP = kemProviderFor(sel.Group().Kem)
	}
	kemKey, err := kemP.GenerateKey(sel.Group().Kem)
	if err != nil {
		return nil, nil, err
	}
	state.kem = kemKey

	payload, err := EncodeHybridKeyExchange(sel.LenPrefixed(), classicalKey.PublicKeyBytes(), kemKey.PublicKeyBytes())
	if err != nil {
		return nil, nil, err
	}
	return payload, state, nil
}

// RespondKeyShare is the responder half of the Key-Share Exchanger. Given
// the client's key share payload for the already-selected group, it
// generates its own ECDH keypair, encapsulates against the client's KEM
// public key for a hybrid selection, and returns the wire payload for the
// ServerHello's key_share extension along with the combined (EC)DHE secret.
func RespondKeyShare(ecdhProvider ECDHProvider, kemProviderOverride KEMProvider, sel Selected, peerKeyExchange []byte) (responsePayload, sharedSecret []byte, err error) {
	if !sel.IsSet() {
		return nil, nil, newError(IllegalParameter, "cannot respond to a key share for an unset selection")
	}

	curve := sel.Curve()
	if sel.IsHybrid() {
		curve = sel.Group().Curve
	}
	serverClassicalKey, err := ecdhProvider.GenerateKey(curve)
	if err != nil {
		return nil, nil, err
	}

	if sel.IsClassical() {
		classicalSecret, err := serverClassicalKey.ECDH(peerKeyExchange)
		if err != nil {
			return nil, nil, err
		}
		return serverClassicalKey.PublicKeyBytes(), classicalSecret, nil
	}

	classicalLen, err := ecdhPublicKeyLen(sel.Group().Curve)
	if err != nil {
		return nil, nil, err
	}
	split, err := DecodeHybridKeyExchange(sel.LenPrefixed(), peerKeyExchange, classicalLen)
	if err != nil {
		return nil, nil, err
	}

	classicalSecret, err := serverClassicalKey.ECDH(split.Classical)
	if err != nil {
		return nil, nil, err
	}

	kemP := kemProviderOverride
	if kemP == nil {
		kemP = kemProviderFor(sel.Group().Kem)
	}
	ciphertext, kemSecret, err := kemP.Encapsulate(sel.Group().Kem, split.KemPart)
	if err != nil {
		return nil, nil, err
	}

	combined := combineSecrets(classicalSecret, kemSecret)

	responsePayload, err = EncodeHybridKeyExchange(sel.LenPrefixed(), serverClassicalKey.PublicKeyBytes(), ciphertext)
	if err != nil {
		return nil, nil, err
	}
	return responsePayload, combined, nil
}

// FinishClientKeyShare is the initiator's final step: given the server's
// key share response and the state retained from GenerateClientKeyShare, it
// computes the classical ECDH secret and, for a hybrid selection,
// decapsulates the KEM ciphertext, returning the same combined (EC)DHE
// secret RespondKeyShare produced on the other side.
func FinishClientKeyShare(state *ClientKeyShareState, peerKeyExchange []byte) ([]byte, error) {
	if state == nil {
		return nil, newError(IllegalParameter, "no retained client key share state")
	}

	if state.sel.IsClassical() {
		return state.classical.ECDH(peerKeyExchange)
	}

	classicalLen, err := ecdhPublicKeyLen(state.sel.Group().Curve)
	if err != nil {
		return nil, err
	}
	split, err := DecodeHybridKeyExchange(state.sel.LenPrefixed(), peerKeyExchange, classicalLen)
	if err != nil {
		return nil, err
	}

	classicalSecret, err := state.classical.ECDH(split.Classical)
	if err != nil {
		return nil, err
	}
	kemSecret, err := state.kem.Decapsulate(split.KemPart)
	if err != nil {
		return nil, err
	}
	return combineSecrets(classicalSecret, kemSecret), nil
}

// combineSecrets concatenates the classical secret before the post-quantum
// secret to form the (EC)DHE key schedule input for a hybrid group, per
// spec.md §4.5's fixed ordering (classical first, regardless of which KEM
// algorithm is paired with it, so that downgrading the PQ half to a
// no-op KEM would reduce to plain ECDHE).
func combineSecrets(classical, kemSecret []byte) []byte {
	out := make([]byte, 0, len(classical)+len(kemSecret))
	out = append(out, classical...)
	out = append(out, kemSecret...)
	return out
}

// ecdhPublicKeyLen reports the fixed wire length of a classical curve's
// public key, needed to split a draft-0 concatenated hybrid payload whose
// components carry no length prefix of their own.
func ecdhPublicKeyLen(c EcCurve) (int, error) {
	switch c.IANAID {
	case CurveX25519:
		return 32, nil
	case CurveSecP256R1:
		return 65, nil
	case CurveSecP384R1:
		return 97, nil
	case CurveSecP521R1:
		return 133, nil
	default:
		return 0, wrapError(Unavailable, "no known public key length for curve "+c.Name, nil)
	}
}
