package messages

// EntityHealth is broadcast when an entity's health changes outside a snapshot.
type EntityHealth struct {
	ID        uint32 `codec:"id"`
	Health    int32  `codec:"hp"`
	MaxHealth int32  `codec:"mhp"`
}

func (EntityHealth) Kind() Kind { return KindEntityHealth }
func (EntityHealth) isMessage() {}

// EntityDeath is broadcast when a player or enemy dies.
type EntityDeath struct {
	ID       uint32 `codec:"id"`
	KillerID uint32 `codec:"killer"` // 0 if environmental
}

func (EntityDeath) Kind() Kind { return KindEntityDeath }
func (EntityDeath) isMessage() {}

// LevelUp is broadcast when a player gains a level.
type LevelUp struct {
	ID        uint32 `codec:"id"`
	Level     int32  `codec:"lvl"`
	MaxHealth int32  `codec:"mhp"`
}

func (LevelUp) Kind() Kind { return KindLevelUp }
func (LevelUp) isMessage() {}

// ItemDrop is broadcast when loot appears in the world.
type ItemDrop struct {
	DropID uint32  `codec:"id"`
	Item   string  `codec:"item"`
	X      float64 `codec:"x"`
	Y      float64 `codec:"y"`
}

func (ItemDrop) Kind() Kind { return KindItemDrop }
func (ItemDrop) isMessage() {}

// RoomUpdate is lobby traffic. The sync core forwards it untouched.
type RoomUpdate struct {
	RoomID  string   `codec:"room"`
	Players []string `codec:"players"`
	State   string   `codec:"state"`
}

func (RoomUpdate) Kind() Kind { return KindRoomUpdate }
func (RoomUpdate) isMessage() {}

// Heartbeat flows in both directions: the server echoes it, the client sends
// one to bind its unreliable endpoint.
type Heartbeat struct {
	ClientTimeMs int64 `codec:"ct"`
	ServerTimeMs int64 `codec:"st"`
}

func (Heartbeat) Kind() Kind { return KindHeartbeat }
func (Heartbeat) isMessage() {}
