package messages

// EntityKind distinguishes remote players from enemies.
type EntityKind uint8

const (
	EntityPlayer EntityKind = iota
	EntityEnemy
)

// FieldMask marks which EntityState fields a delta carries. Full snapshots
// always carry every field regardless of the mask.
type FieldMask uint16

const (
	FieldAlive FieldMask = 1 << iota
	FieldHealth
	FieldPosition
	FieldRotation
	FieldVelocity
	FieldAttack

	FieldAll = FieldAlive | FieldHealth | FieldPosition | FieldRotation | FieldVelocity | FieldAttack
)

// Has reports whether every bit in f is set.
func (m FieldMask) Has(f FieldMask) bool {
	return m&f == f
}

// NoTick marks a state message that carries no tick number.
const NoTick int64 = -1

// StateHeader is the part of every state broadcast used for ordering and
// reconciliation.
type StateHeader struct {
	Tick               int64  `codec:"tick"` // NoTick (or any negative) when absent
	ServerTimeMs       int64  `codec:"st"`
	LastProcessedInput uint32 `codec:"lpi"` // last input sequence the server applied for the receiver
}

// HasTick reports whether the header carries a tick number.
func (h StateHeader) HasTick() bool {
	return h.Tick >= 0
}

// EntityState is one entity's authoritative state inside a snapshot.
type EntityState struct {
	ID            uint32     `codec:"id"`
	Kind          EntityKind `codec:"k"`
	Fields        FieldMask  `codec:"f"`
	Alive         bool       `codec:"a"`
	Health        int32      `codec:"hp"`
	MaxHealth     int32      `codec:"mhp"`
	X             float64    `codec:"x"`
	Y             float64    `codec:"y"`
	Rotation      float64    `codec:"r"`
	VelX          float64    `codec:"vx"`
	VelY          float64    `codec:"vy"`
	AttackTrigger bool       `codec:"at"`
	Attacking     *bool      `codec:"atk,omitempty"` // explicit synced attack flag, nil until the server syncs it
}

// Authoritative is implemented by both snapshot kinds so acceptance and
// application share one path.
type Authoritative interface {
	Message
	Header() StateHeader
	// Complete reports whether the message replaces the full world state.
	Complete() bool
	States() []EntityState
}

// FullState replaces the client's view of the world.
type FullState struct {
	StateHeader
	Entities []EntityState `codec:"e"`
}

func (FullState) Kind() Kind { return KindFullState }
func (FullState) isMessage() {}
func (m FullState) Header() StateHeader { return m.StateHeader }
func (FullState) Complete() bool { return true }
func (m FullState) States() []EntityState { return m.Entities }

// DeltaState carries only the entities and fields that changed.
type DeltaState struct {
	StateHeader
	Entities []EntityState `codec:"e"`
	Removed  []uint32      `codec:"rm"`
}

func (DeltaState) Kind() Kind { return KindDeltaState }
func (DeltaState) isMessage() {}
func (m DeltaState) Header() StateHeader { return m.StateHeader }
func (DeltaState) Complete() bool { return false }
func (m DeltaState) States() []EntityState { return m.Entities }

// FieldsOf returns the effective field mask of s inside msg.
func FieldsOf(msg Authoritative, s EntityState) FieldMask {
	if msg.Complete() {
		return FieldAll
	}
	return s.Fields
}
