package pqkex

// NegotiationEvent is the common interface for every event this package can
// emit during a handshake. Like crypto/tls, this package does not log
// anything itself — crypto/tls exposes state through returned errors and
// ConnectionState, never a log line — so this core exposes a structured
// event stream instead and leaves writing it anywhere (a logger, a metrics
// counter, a trace span) to the caller's OnEvent hook.
type NegotiationEvent interface {
	// Stage names which handshake phase produced the event, for callers
	// that want to filter without a type switch.
	Stage() string
}

// EventStateTransition fires whenever the handshake state machine moves
// from one HandshakeState to another.
type EventStateTransition struct {
	From, To HandshakeState
}

func (EventStateTransition) Stage() string { return "state_transition" }

// EventGroupSelected fires once the Selection Engine has produced a
// successful result. A failed selection emits EventHandshakeAborted instead.
type EventGroupSelected struct {
	Result SelectResult
}

func (EventGroupSelected) Stage() string { return "group_selected" }

// EventHRRTriggered fires when the server decides to emit a
// HelloRetryRequest and when the client processes one, naming the group
// the retry asks for.
type EventHRRTriggered struct {
	Group CurveID
}

func (EventHRRTriggered) Stage() string { return "hello_retry_request" }

// EventHandshakeAborted fires when the state machine transitions to
// StateAborted, carrying the error that caused it.
type EventHandshakeAborted struct {
	Err error
}

func (EventHandshakeAborted) Stage() string { return "handshake_aborted" }

// EventKeyShareExchanged fires once a side has produced or consumed a
// key_share payload, naming whether it was the local or peer side and the
// group involved. It intentionally never carries the key material itself.
type EventKeyShareExchanged struct {
	Group CurveID
	Local bool
}

func (EventKeyShareExchanged) Stage() string { return "key_share_exchanged" }

// EventSink receives every NegotiationEvent a HandshakeContext emits. A nil
// EventSink is valid and simply discards events; HandshakeContext checks
// for nil before calling it so callers that don't care about observability
// pay nothing for it.
type EventSink interface {
	OnEvent(NegotiationEvent)
}

// EventSinkFunc adapts a plain function to EventSink, the same pattern
// http.HandlerFunc uses for http.Handler in the standard library.
type EventSinkFunc func(NegotiationEvent)

func (f EventSinkFunc) OnEvent(e NegotiationEvent) { f(e) }

func emit(sink EventSink, e NegotiationEvent) {
	if sink != nil {
		sink.OnEvent(e)
	}
}
