package components

import (
	"github.com/automoto/doomerang-sync/network"
	"github.com/yohamta/donburi"
)

// NetSamples holds the server-time ordered samples a remote entity is
// rendered from.
var NetSamples = donburi.NewComponentType[network.EntityBuffer]()

// NetAttack tracks whether a remote entity is mid-attack.
var NetAttack = donburi.NewComponentType[network.AttackState]()
