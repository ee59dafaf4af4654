package pqkex

// ClientHelloIn is the negotiation-relevant subset of an incoming
// ClientHello: its supported_groups and key_share extensions plus the
// hybrid-draft revision it declares. Everything else a real ClientHello
// carries (SNI, ALPN, signature_algorithms, session tickets) belongs to the
// record-layer/authentication collaborators this package does not
// implement, per spec.md §1.
type ClientHelloIn struct {
	SupportedGroups     []CurveID
	KeyShares           []KeyShareEntry
	HybridDraftRevision uint8
	Raw                 []byte // for transcript hashing; caller-supplied
}

// ServerHelloOut is what ProcessClientHello/ProcessSecondClientHello
// produce: either a HelloRetryRequest (IsHRR true, KeyShare unset) or a
// completed ServerHello carrying the server's own key share and, once the
// key exchange finishes, the derived handshake secrets.
type ServerHelloOut struct {
	IsHRR         bool
	SelectedGroup CurveID
	KeyShare      KeyShareEntry
	Derived       DerivedSecrets

	// Raw is this message's canonical transcript-hash contribution, set
	// only for a completed (non-HRR) ServerHello and already folded into
	// this handshake's own transcript. A caller wiring this package to a
	// peer's ClientHandshake forwards it unchanged as the matching
	// ServerMessageIn.Raw.
	Raw []byte
}

// ServerHandshake drives the server side of the state machine in
// spec.md §4.4, grounded on processClientHello/doHelloRetryRequest's
// control flow: select a group, emit either an HRR or a completed
// ServerHello, and on HRR require the client's second offer to match.
type ServerHandshake struct {
	ctx          *HandshakeContext
	ecdhProvider ECDHProvider
	kemProvider  KEMProvider // nil to use the per-group default
	hashName     string
	hrrGroup     CurveID
}

// NewServerHandshake constructs a ServerHandshake in StateExpectClientHello.
// A nil sink discards every observability event.
func NewServerHandshake(reg *Registry, prefs PreferenceSet, hashName string, sink EventSink) *ServerHandshake {
	return &ServerHandshake{
		ctx: &HandshakeContext{
			Role:       RoleServer,
			State:      StateExpectClientHello,
			Flags:      FlagInitial,
			localPrefs: prefs,
			registry:   reg,
			transcript: newTranscriptHash(),
			sink:       sink,
		},
		ecdhProvider: DefaultECDHProvider,
		hashName:     hashName,
	}
}

// Context exposes the underlying HandshakeContext for inspection (current
// state, flags, negotiated result). It returns the live context, not a
// copy, so its exported fields are writable by the caller.
func (s *ServerHandshake) Context() *HandshakeContext { return s.ctx }

// ProcessClientHello runs the Selection Engine against the first
// ClientHello and either returns a HelloRetryRequest to send, or completes
// the key exchange and returns a ServerHello carrying derived secrets.
func (s *ServerHandshake) ProcessClientHello(ch ClientHelloIn) (ServerHelloOut, error) {
	if s.ctx.State != StateExpectClientHello {
		return ServerHelloOut{}, s.ctx.abort(newError(IllegalParameter, "unexpected first ClientHello in state "+s.ctx.State.String()))
	}
	s.ctx.transcript.write(ch.Raw)
	s.ctx.transition(StateSelecting)

	s.ctx.peerOfferedGroups = ch.SupportedGroups
	s.ctx.peerKeyShares = keySharesToMap(ch.KeyShares)

	result, err := Select(s.ctx.registry, s.ctx.localPrefs, ch.SupportedGroups, s.ctx.peerKeyShares, ch.HybridDraftRevision)
	if err != nil {
		return ServerHelloOut{}, s.ctx.abort(err)
	}
	emit(s.ctx.sink, EventGroupSelected{Result: result})
	s.ctx.Negotiated = result.Selected

	if result.RequiresHRR {
		return s.sendHRR(result)
	}
	return s.completeKeyExchange(ch.KeyShares)
}

func (s *ServerHandshake) sendHRR(result SelectResult) (ServerHelloOut, error) {
	s.ctx.transition(StateSendHRR)

	s.hrrGroup = negotiatedGroupID(result.Selected)
	s.ctx.Flags |= FlagHelloRetryRequest
	s.ctx.transcript.switchToHRR()
	emit(s.ctx.sink, EventHRRTriggered{Group: s.hrrGroup})

	s.ctx.transition(StateExpectCH2)
	return ServerHelloOut{IsHRR: true, SelectedGroup: s.hrrGroup}, nil
}

// ProcessSecondClientHello handles the client's retry offer after an HRR.
// Per spec.md §4.4, a second ClientHello that still lacks a key share for
// the indicated group is a fatal illegal-parameter error; the state
// machine does not loop back to SEND_HRR a second time.
func (s *ServerHandshake) ProcessSecondClientHello(ch ClientHelloIn) (ServerHelloOut, error) {
	if s.ctx.State != StateExpectCH2 {
		return ServerHelloOut{}, s.ctx.abort(newError(IllegalParameter, "unexpected second ClientHello in state "+s.ctx.State.String()))
	}
	s.ctx.transition(StateSelecting2)

	if len(ch.KeyShares) != 1 || ch.KeyShares[0].Group != s.hrrGroup {
		return ServerHelloOut{}, s.ctx.abort(newError(IllegalParameter, "second ClientHello did not offer exactly the requested group's key share"))
	}
	if !containsCurveID(ch.SupportedGroups, s.hrrGroup) {
		return ServerHelloOut{}, s.ctx.abort(newError(IllegalParameter, "second ClientHello dropped the requested group from supported_groups"))
	}

	s.ctx.transcript.write(ch.Raw)
	s.ctx.peerOfferedGroups = ch.SupportedGroups
	s.ctx.peerKeyShares = keySharesToMap(ch.KeyShares)

	return s.completeKeyExchange(ch.KeyShares)
}

func (s *ServerHandshake) completeKeyExchange(clientKeyShares []KeyShareEntry) (ServerHelloOut, error) {
	s.ctx.transition(StateSendServerHello)

	groupID := negotiatedGroupID(s.ctx.Negotiated)
	clientShare, ok := findKeyShare(clientKeyShares, groupID)
	if !ok {
		return ServerHelloOut{}, s.ctx.abort(newError(IllegalParameter, "no client key share for the negotiated group"))
	}

	responsePayload, sharedSecret, err := RespondKeyShare(s.ecdhProvider, s.kemProvider, s.ctx.Negotiated, clientShare.KeyExchange)
	if err != nil {
		return ServerHelloOut{}, s.ctx.abort(err)
	}
	serverShare := KeyShareEntry{Group: groupID, KeyExchange: responsePayload}
	emit(s.ctx.sink, EventKeyShareExchanged{Group: groupID, Local: true})

	raw, err := canonicalServerHelloBytes(groupID, serverShare)
	if err != nil {
		zeroBytes(sharedSecret)
		return ServerHelloOut{}, s.ctx.abort(err)
	}
	s.ctx.transcript.write(raw)

	s.ctx.transition(StateDeriveHandshakeSecrets)
	derived, err := deriveSecrets(s.hashName, sharedSecret, s.ctx.transcript.sum())
	zeroBytes(sharedSecret)
	if err != nil {
		return ServerHelloOut{}, s.ctx.abort(err)
	}
	s.ctx.derived = derived

	s.ctx.transition(StateAwaitingFinished)
	return ServerHelloOut{SelectedGroup: groupID, KeyShare: serverShare, Derived: derived, Raw: raw}, nil
}

func keySharesToMap(entries []KeyShareEntry) map[CurveID][]byte {
	out := make(map[CurveID][]byte, len(entries))
	for _, e := range entries {
		out[e.Group] = e.KeyExchange
	}
	return out
}

func findKeyShare(entries []KeyShareEntry, group CurveID) (KeyShareEntry, bool) {
	for _, e := range entries {
		if e.Group == group {
			return e, true
		}
	}
	return KeyShareEntry{}, false
}

func containsCurveID(ids []CurveID, target CurveID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func negotiatedGroupID(sel Selected) CurveID {
	if sel.IsHybrid() {
		return sel.Group().IANAID
	}
	return sel.Curve().IANAID
}
