package pqkex

// ClientHelloOut is what Start/ProcessServerMessage produce for the client
// to send: the negotiation-relevant extensions of a ClientHello, built from
// whichever key shares the client chose to attach. Normal operation
// attaches a share only for the top KEM group and top curve (the "client
// sends a subset of its listed groups" behavior RFC 8446 §4.2.8 allows);
// tests exercising the server-preference-scan rule may construct a
// ClientHelloOut by hand to withhold a share deliberately.
type ClientHelloOut struct {
	SupportedGroups     []CurveID
	KeyShares           []KeyShareEntry
	HybridDraftRevision uint8

	// Raw is this message's canonical transcript-hash contribution,
	// already folded into this handshake's own transcript. A caller
	// wiring this package to a peer's ServerHandshake forwards it
	// unchanged as the matching ClientHelloIn.Raw.
	Raw []byte
}

// ServerMessageIn is the negotiation-relevant subset of either a
// HelloRetryRequest or a ServerHello, discriminated by IsHRR.
type ServerMessageIn struct {
	IsHRR         bool
	SelectedGroup CurveID
	KeyShare      KeyShareEntry // unset when IsHRR
	Raw           []byte        // for transcript hashing
}

// ClientFinished carries the outcome of a successful client-side key
// exchange: the negotiated group and the derived handshake secrets.
type ClientFinished struct {
	Negotiated Selected
	Derived    DerivedSecrets
}

// ClientHandshake drives the client side of spec.md §4.4: it tracks which
// key shares it sent, and on HRR regenerates only the key share for the
// newly indicated group, re-sending everything else unchanged.
type ClientHandshake struct {
	ctx          *HandshakeContext
	ecdhProvider ECDHProvider
	kemProvider  KEMProvider
	hashName     string

	keyShareState map[CurveID]*ClientKeyShareState
}

// NewClientHandshake constructs a ClientHandshake in StateSendClientHello.
func NewClientHandshake(reg *Registry, prefs PreferenceSet, hashName string, sink EventSink) *ClientHandshake {
	return &ClientHandshake{
		ctx: &HandshakeContext{
			Role:       RoleClient,
			State:      StateSendClientHello,
			Flags:      FlagInitial,
			localPrefs: prefs,
			registry:   reg,
			transcript: newTranscriptHash(),
			sink:       sink,
		},
		ecdhProvider:  DefaultECDHProvider,
		hashName:      hashName,
		keyShareState: make(map[CurveID]*ClientKeyShareState),
	}
}

func (c *ClientHandshake) Context() *HandshakeContext { return c.ctx }

// Start builds the first ClientHello, attaching a key share for the
// client's single most-preferred KEM group and single most-preferred
// curve, the default behavior a real TLS 1.3 client uses to usually
// complete in one round trip.
func (c *ClientHandshake) Start() (ClientHelloOut, error) {
	if c.ctx.State != StateSendClientHello {
		return ClientHelloOut{}, c.ctx.abort(newError(IllegalParameter, "Start called outside SEND_CLIENT_HELLO"))
	}

	groups := make([]CurveID, 0, len(c.ctx.localPrefs.KemGroups)+len(c.ctx.localPrefs.Curves))
	for _, g := range c.ctx.localPrefs.KemGroups {
		groups = append(groups, g.IANAID)
	}
	for _, cv := range c.ctx.localPrefs.Curves {
		groups = append(groups, cv.IANAID)
	}

	var shares []KeyShareEntry
	if len(c.ctx.localPrefs.KemGroups) > 0 {
		top := c.ctx.localPrefs.KemGroups[0]
		entry, err := c.generateShareFor(SelectedHybrid(top, c.ctx.localPrefs.HybridDraftRevision == 5))
		if err != nil {
			return ClientHelloOut{}, c.ctx.abort(err)
		}
		shares = append(shares, entry)
	}
	if len(c.ctx.localPrefs.Curves) > 0 {
		top := c.ctx.localPrefs.Curves[0]
		entry, err := c.generateShareFor(SelectedClassical(top))
		if err != nil {
			return ClientHelloOut{}, c.ctx.abort(err)
		}
		shares = append(shares, entry)
	}

	raw, err := canonicalClientHelloBytes(groups, shares)
	if err != nil {
		return ClientHelloOut{}, c.ctx.abort(err)
	}
	c.ctx.transcript.write(raw)

	c.ctx.transition(StateExpectHelloRetryRequestOrServerHello)
	return ClientHelloOut{
		SupportedGroups:     groups,
		KeyShares:           shares,
		HybridDraftRevision: c.ctx.localPrefs.HybridDraftRevision,
		Raw:                 raw,
	}, nil
}

func (c *ClientHandshake) generateShareFor(sel Selected) (KeyShareEntry, error) {
	payload, state, err := GenerateClientKeyShare(c.ecdhProvider, c.kemProvider, sel)
	if err != nil {
		return KeyShareEntry{}, err
	}
	id := negotiatedGroupID(sel)
	c.keyShareState[id] = state
	return KeyShareEntry{Group: id, KeyExchange: payload}, nil
}

// ProcessServerMessage consumes either a HelloRetryRequest or a
// ServerHello. For an HRR it returns a second ClientHelloOut to send; for a
// ServerHello it completes the key exchange and returns the derived
// secrets.
func (c *ClientHandshake) ProcessServerMessage(msg ServerMessageIn) (ClientHelloOut, *ClientFinished, error) {
	if msg.IsHRR {
		return c.processHRR(msg)
	}
	finished, err := c.processServerHello(msg)
	return ClientHelloOut{}, finished, err
}

func (c *ClientHandshake) processHRR(msg ServerMessageIn) (ClientHelloOut, *ClientFinished, error) {
	if c.ctx.State != StateExpectHelloRetryRequestOrServerHello {
		return ClientHelloOut{}, nil, c.ctx.abort(newError(IllegalParameter, "unexpected HelloRetryRequest in state "+c.ctx.State.String()))
	}
	c.ctx.Flags |= FlagHelloRetryRequest
	c.ctx.transcript.switchToHRR()
	emit(c.ctx.sink, EventHRRTriggered{Group: msg.SelectedGroup})
	c.ctx.transition(StateSendClientHello2)

	sel, err := c.selectionForGroupID(msg.SelectedGroup)
	if err != nil {
		return ClientHelloOut{}, nil, c.ctx.abort(err)
	}
	c.ctx.Negotiated = sel

	// Discard any previously generated key material; only the indicated
	// group's key share is regenerated, per spec.md §4.4.
	c.keyShareState = make(map[CurveID]*ClientKeyShareState)
	entry, err := c.generateShareFor(sel)
	if err != nil {
		return ClientHelloOut{}, nil, c.ctx.abort(err)
	}

	groups := make([]CurveID, 0, len(c.ctx.localPrefs.KemGroups)+len(c.ctx.localPrefs.Curves))
	for _, g := range c.ctx.localPrefs.KemGroups {
		groups = append(groups, g.IANAID)
	}
	for _, cv := range c.ctx.localPrefs.Curves {
		groups = append(groups, cv.IANAID)
	}

	raw, err := canonicalClientHelloBytes(groups, []KeyShareEntry{entry})
	if err != nil {
		return ClientHelloOut{}, nil, c.ctx.abort(err)
	}
	c.ctx.transcript.write(raw)

	c.ctx.transition(StateExpectHelloRetryRequestOrServerHello)
	return ClientHelloOut{
		SupportedGroups:     groups,
		KeyShares:           []KeyShareEntry{entry},
		HybridDraftRevision: c.ctx.localPrefs.HybridDraftRevision,
		Raw:                 raw,
	}, nil, nil
}

func (c *ClientHandshake) selectionForGroupID(id CurveID) (Selected, error) {
	if g, ok := groupByIANAID(id); ok {
		return SelectedHybrid(g, c.ctx.localPrefs.HybridDraftRevision == 5), nil
	}
	if cv, ok := curveByIANAID(id); ok {
		return SelectedClassical(cv), nil
	}
	return Selected{}, newError(IllegalParameter, "server named an unknown group in HelloRetryRequest")
}

func (c *ClientHandshake) processServerHello(msg ServerMessageIn) (*ClientFinished, error) {
	if c.ctx.State != StateExpectHelloRetryRequestOrServerHello {
		return nil, c.ctx.abort(newError(IllegalParameter, "unexpected ServerHello in state "+c.ctx.State.String()))
	}
	c.ctx.transcript.write(msg.Raw)
	c.ctx.transition(StateDeriveHandshakeSecrets)

	if c.ctx.Negotiated.IsSet() {
		if negotiatedGroupID(c.ctx.Negotiated) != msg.SelectedGroup {
			return nil, c.ctx.abort(newError(IllegalParameter, "server selected a group inconsistent with its HelloRetryRequest"))
		}
	} else {
		sel, err := c.selectionForGroupID(msg.SelectedGroup)
		if err != nil {
			return nil, c.ctx.abort(err)
		}
		c.ctx.Negotiated = sel
	}

	state, ok := c.keyShareState[msg.SelectedGroup]
	if !ok {
		return nil, c.ctx.abort(newError(IllegalParameter, "server selected a group the client never sent a key share for"))
	}

	sharedSecret, err := FinishClientKeyShare(state, msg.KeyShare.KeyExchange)
	if err != nil {
		return nil, c.ctx.abort(err)
	}
	emit(c.ctx.sink, EventKeyShareExchanged{Group: msg.SelectedGroup, Local: false})

	derived, err := deriveSecrets(c.hashName, sharedSecret, c.ctx.transcript.sum())
	zeroBytes(sharedSecret)
	if err != nil {
		return nil, c.ctx.abort(err)
	}
	c.ctx.derived = derived

	c.ctx.transition(StateAwaitingFinished)
	return &ClientFinished{Negotiated: c.ctx.Negotiated, Derived: derived}, nil
}
