package archetypes

import (
	"github.com/automoto/doomerang-sync/components"
	"github.com/automoto/doomerang-sync/shared/messages"
	"github.com/automoto/doomerang-sync/tags"
	"github.com/yohamta/donburi"
)

var (
	RemotePlayer = newArchetype(
		tags.RemotePlayer,
		components.NetEntity,
		components.NetSamples,
		components.NetAttack,
	)
	RemoteEnemy = newArchetype(
		tags.RemoteEnemy,
		components.NetEntity,
		components.NetSamples,
		components.NetAttack,
	)
)

type archetype struct {
	components []donburi.IComponentType
}

func newArchetype(cs ...donburi.IComponentType) *archetype {
	return &archetype{
		components: cs,
	}
}

func (a *archetype) Spawn(world donburi.World, cs ...donburi.IComponentType) *donburi.Entry {
	all := make([]donburi.IComponentType, 0, len(a.components)+len(cs))
	all = append(all, a.components...)
	return world.Entry(world.Create(append(all, cs...)...))
}

// ForKind picks the archetype for a remote entity kind. Unknown kinds are
// treated as players.
func ForKind(kind messages.EntityKind) *archetype {
	if kind == messages.EntityEnemy {
		return RemoteEnemy
	}
	return RemotePlayer
}
