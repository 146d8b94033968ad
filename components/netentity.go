package components

import (
	"github.com/automoto/doomerang-sync/shared/messages"
	"github.com/yohamta/donburi"
)

// NetEntityData is the non-spatial authoritative status of a remote entity.
type NetEntityData struct {
	ID        uint32
	Kind      messages.EntityKind
	Alive     bool
	Health    int32
	MaxHealth int32
	Level     int32
}

var NetEntity = donburi.NewComponentType[NetEntityData]()
