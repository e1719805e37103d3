package conductor

// EffectKind names an outbound intent the reducer asks the surrounding
// runtime to perform. The reducer never performs I/O itself (spec §4.3,
// §5); effects are how it asks for I/O without doing it.
type EffectKind string

const (
	EffectPersist           EffectKind = "persist"
	EffectBroadcast         EffectKind = "broadcast"
	EffectBroadcastTiebreak EffectKind = "broadcast_tiebreaker"
	EffectForceReconnect    EffectKind = "force_reconnect"
	EffectError             EffectKind = "error"
)

// Effect is one outbound intent produced alongside a new state.
type Effect struct {
	Kind    EffectKind
	Reason  string
	Code    Code
	Message string
}

func persistEffect() Effect { return Effect{Kind: EffectPersist} }

func broadcastEffect() Effect { return Effect{Kind: EffectBroadcast} }

func tiebreakEffect(reason string) Effect {
	return Effect{Kind: EffectBroadcastTiebreak, Reason: reason}
}

func errorEffect(err *Error) Effect {
	return Effect{Kind: EffectError, Code: err.Code, Message: err.Error()}
}
