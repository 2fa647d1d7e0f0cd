package websocket

// EffectKind enumerates how handling a command changes session-local state.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectSetUser
	EffectSetRoom
	EffectClearRoom
	EffectSetSubscription
	EffectSetUserAndSubscription
	EffectDirectResponse
)

// Effect is the result of dispatching one inbound command. It is applied only
// by the session that issued the command, never broadcast. Response, when
// non-nil, is written back to that connection regardless of Kind, so a state
// change can carry an acknowledgment or an error alongside it.
type Effect struct {
	Kind EffectKind

	UserID   string
	Username string
	RoomID   string

	Subscription *Subscription
	Response     *Envelope
}

func noopEffect() Effect {
	return Effect{Kind: EffectNone}
}

func respondEffect(env *Envelope) Effect {
	return Effect{Kind: EffectDirectResponse, Response: env}
}
