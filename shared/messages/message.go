// Package messages defines the decoded message kinds exchanged between the
// client core and the game server. The byte layout lives in shared/protocol;
// this package only carries the semantic fields.
package messages

// Kind identifies a message on the wire.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindFullState
	KindDeltaState
	KindEntityHealth
	KindEntityDeath
	KindLevelUp
	KindItemDrop
	KindLoginResult
	KindRoomUpdate
	KindHeartbeat
	KindLoginRequest
	KindPlayerInput
	KindResyncRequest
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindFullState:     "full_state",
	KindDeltaState:    "delta_state",
	KindEntityHealth:  "entity_health",
	KindEntityDeath:   "entity_death",
	KindLevelUp:       "level_up",
	KindItemDrop:      "item_drop",
	KindLoginResult:   "login_result",
	KindRoomUpdate:    "room_update",
	KindHeartbeat:     "heartbeat",
	KindLoginRequest:  "login_request",
	KindPlayerInput:   "player_input",
	KindResyncRequest: "resync_request",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Message is the closed set of decoded messages. Only types in this package
// implement it.
type Message interface {
	Kind() Kind
	isMessage()
}

// Unknown is produced when a peer sends a kind this build does not know.
// Consumers treat it as a no-op.
type Unknown struct {
	RawKind Kind
}

func (Unknown) Kind() Kind { return KindUnknown }
func (Unknown) isMessage() {}
