package pqkex

// Selected is the sum type produced by the Selection Engine: exactly one of
// a hybrid KEM group or a classical curve, never both, never neither, once
// set. The zero value represents "nothing selected yet".
type Selected struct {
	isSet       bool
	hybrid      bool
	group       KemGroup
	lenPrefixed bool
	curve       EcCurve
}

// SelectedHybrid constructs a Selected naming a hybrid KEM group.
func SelectedHybrid(group KemGroup, lenPrefixed bool) Selected {
	return Selected{isSet: true, hybrid: true, group: group, lenPrefixed: lenPrefixed}
}

// SelectedClassical constructs a Selected naming a classical curve.
func SelectedClassical(curve EcCurve) Selected {
	return Selected{isSet: true, hybrid: false, curve: curve}
}

// IsSet reports whether a selection has been made.
func (s Selected) IsSet() bool { return s.isSet }

// IsHybrid reports whether the selection is a hybrid KEM group.
func (s Selected) IsHybrid() bool { return s.isSet && s.hybrid }

// IsClassical reports whether the selection is a classical curve.
func (s Selected) IsClassical() bool { return s.isSet && !s.hybrid }

// Group returns the selected KEM group. It panics if the selection is not
// hybrid; callers should check IsHybrid first.
func (s Selected) Group() KemGroup {
	if !s.IsHybrid() {
		panic("pqkex: Selected.Group called on a non-hybrid selection")
	}
	return s.group
}

// Curve returns the selected classical curve. It panics if the selection is
// not classical; callers should check IsClassical first.
func (s Selected) Curve() EcCurve {
	if !s.IsClassical() {
		panic("pqkex: Selected.Curve called on a non-classical selection")
	}
	return s.curve
}

// LenPrefixed reports whether the hybrid payload uses the length-prefixed
// (draft-5) wire format rather than the concatenated (draft-0) format. It
// is only meaningful when IsHybrid is true.
func (s Selected) LenPrefixed() bool { return s.lenPrefixed }

// KemGroupName returns the negotiated hybrid group's public name, or "" if
// no hybrid group was negotiated. Mirrors get_kem_group_name in spec.md §6.
func (s Selected) KemGroupName() string {
	if s.IsHybrid() {
		return s.group.Name
	}
	return ""
}

// CurveName returns the negotiated classical curve's name, or "" if no
// classical curve was negotiated. Mirrors get_curve in spec.md §6.
func (s Selected) CurveName() string {
	if s.IsClassical() {
		return s.curve.Name
	}
	return ""
}

// KeyExchangeGroupName returns whichever of KemGroupName/CurveName is
// active. Mirrors get_key_exchange_group in spec.md §6.
func (s Selected) KeyExchangeGroupName() string {
	if s.IsHybrid() {
		return s.group.Name
	}
	if s.IsClassical() {
		return s.curve.Name
	}
	return ""
}

// selectionRule names which tie-break rule of spec.md §4.3 produced a
// SelectResult. It has no effect on wire behavior; it exists purely for
// observability and test assertions.
type selectionRule int

const (
	rule1RTTFastPath selectionRule = iota
	rulePQServerPreferenceScan
	ruleClassicalFastPath
	ruleClassicalServerPreferenceScan
)

// SelectResult is the output of the Selection Engine.
type SelectResult struct {
	Selected    Selected
	RequiresHRR bool
	Rule        selectionRule
}

// Select is the Selection Engine (component C): a pure function of the
// server's own preferences and what it has learned about the peer from the
// ClientHello, implementing the two-tier rule of spec.md §4.3: a 1-RTT fast
// path on the peer's own top choice, falling back to a scan of this side's
// preference order (which may re-discover that same top choice, just
// lacking an attached key share, and therefore needing an HRR round trip
// to get one) when the fast path does not apply.
//
// peerOfferedGroups is the client's supported_groups extension, in the
// client's preference order, mixing KEM-group and curve ids. peerKeyShares
// holds the raw key share payload for every group the client actually sent
// a key share for. peerHybridDraftRevision is the client's declared hybrid
// draft revision (0 or 5), carried on the wire alongside supported_groups;
// see DESIGN.md's note on the len_prefixed source of truth.
func Select(reg *Registry, local PreferenceSet, peerOfferedGroups []CurveID, peerKeyShares map[CurveID][]byte, peerHybridDraftRevision uint8) (SelectResult, error) {
	peerKemGroups := reg.availableGroups(filterKemGroups(peerOfferedGroups))
	peerCurves := filterCurves(peerOfferedGroups)

	localKemGroups := reg.availableGroups(local.KemGroups)
	if len(localKemGroups) > 0 && len(peerKemGroups) > 0 {
		if res, ok := selectKemGroup(localKemGroups, peerKemGroups, peerKeyShares, peerHybridDraftRevision); ok {
			return res, nil
		}
	}

	if res, ok := selectCurve(local.Curves, peerCurves, peerKeyShares); ok {
		return res, nil
	}

	return SelectResult{}, newError(NoMutualGroup, "no mutually supported KEM group or curve")
}

func filterKemGroups(offered []CurveID) []KemGroup {
	out := make([]KemGroup, 0, len(offered))
	for _, id := range offered {
		if g, ok := groupByIANAID(id); ok {
			out = append(out, g)
		}
	}
	return out
}

func filterCurves(offered []CurveID) []EcCurve {
	out := make([]EcCurve, 0, len(offered))
	for _, id := range offered {
		if c, ok := curveByIANAID(id); ok {
			out = append(out, c)
		}
	}
	return out
}

// selectKemGroup implements spec.md §4.3 steps 1 and 2: the 1-RTT fast path
// over the peer's top choice, then a server-preference scan over every
// group the peer offered. Both lists arrive already filtered by availability.
func selectKemGroup(localAvailable, peerGroups []KemGroup, peerKeyShares map[CurveID][]byte, peerRevision uint8) (SelectResult, bool) {
	lenPrefixed := peerRevision == 5

	// Step 1: 1-RTT fast path. The server honors the client's top choice
	// whenever both sides support it and the client actually sent a key
	// share for it, even if the server would prefer a later entry.
	top := peerGroups[0]
	if _, hasShare := peerKeyShares[top.IANAID]; hasShare {
		if containsGroup(localAvailable, top.IANAID) {
			return SelectResult{
				Selected:    SelectedHybrid(top, lenPrefixed),
				RequiresHRR: false,
				Rule:        rule1RTTFastPath,
			}, true
		}
	}

	// Step 2: the fast path above failed, either because the peer's top
	// choice is unsupported here or because the peer didn't attach a key
	// share for it. Fall back to scanning this side's own preference
	// order against everything the peer offered (top choice included —
	// it may still be the only mutual group, just without an attached
	// share) and pick the first mutually supported match. If the peer
	// didn't send a key share for that match, an HRR round trip is
	// required to get one.
	for _, s := range localAvailable {
		for _, c := range peerGroups {
			if c.IANAID != s.IANAID {
				continue
			}
			_, hasShare := peerKeyShares[s.IANAID]
			return SelectResult{
				Selected:    SelectedHybrid(s, lenPrefixed),
				RequiresHRR: !hasShare,
				Rule:        rulePQServerPreferenceScan,
			}, true
		}
	}

	return SelectResult{}, false
}

// selectCurve implements spec.md §4.3 step 3: the same two-tier rule, over
// classical curves, with no wire-format concept.
func selectCurve(localCurves, peerCurves []EcCurve, peerKeyShares map[CurveID][]byte) (SelectResult, bool) {
	if len(localCurves) == 0 || len(peerCurves) == 0 {
		return SelectResult{}, false
	}

	top := peerCurves[0]
	if _, hasShare := peerKeyShares[top.IANAID]; hasShare {
		if containsCurve(localCurves, top.IANAID) {
			return SelectResult{
				Selected:    SelectedClassical(top),
				RequiresHRR: false,
				Rule:        ruleClassicalFastPath,
			}, true
		}
	}

	for _, s := range localCurves {
		for _, c := range peerCurves {
			if c.IANAID != s.IANAID {
				continue
			}
			_, hasShare := peerKeyShares[s.IANAID]
			return SelectResult{
				Selected:    SelectedClassical(s),
				RequiresHRR: !hasShare,
				Rule:        ruleClassicalServerPreferenceScan,
			}, true
		}
	}

	return SelectResult{}, false
}

func containsGroup(groups []KemGroup, id CurveID) bool {
	for _, g := range groups {
		if g.IANAID == id {
			return true
		}
	}
	return false
}

func containsCurve(curves []EcCurve, id CurveID) bool {
	for _, c := range curves {
		if c.IANAID == id {
			return true
		}
	}
	return false
}

// PredictSelection is the predictive helper referenced in spec.md §4.3: it
// calls the identical Select code path as the production handshake driver,
// simulating a ClientHello in which the client sent a key share only for
// its single most-preferred KEM group and single most-preferred curve —
// the default behavior of a real TLS 1.3 client. It is intended for tests
// that want to assert an expected negotiation outcome without driving a
// full handshake.
func PredictSelection(reg *Registry, clientPrefs, serverPrefs PreferenceSet) (SelectResult, error) {
	offered := make([]CurveID, 0, len(clientPrefs.KemGroups)+len(clientPrefs.Curves))
	for _, g := range clientPrefs.KemGroups {
		offered = append(offered, g.IANAID)
	}
	for _, c := range clientPrefs.Curves {
		offered = append(offered, c.IANAID)
	}

	shares := make(map[CurveID][]byte)
	if len(clientPrefs.KemGroups) > 0 {
		shares[clientPrefs.KemGroups[0].IANAID] = []byte{}
	}
	if len(clientPrefs.Curves) > 0 {
		shares[clientPrefs.Curves[0].IANAID] = []byte{}
	}

	return Select(reg, serverPrefs, offered, shares, clientPrefs.HybridDraftRevision)
}
