package systems

import (
	"sort"
	"time"

	"github.com/automoto/doomerang-sync/archetypes"
	"github.com/automoto/doomerang-sync/components"
	"github.com/automoto/doomerang-sync/config"
	"github.com/automoto/doomerang-sync/network"
	"github.com/automoto/doomerang-sync/shared/gamemath"
	"github.com/automoto/doomerang-sync/shared/messages"
	"github.com/yohamta/donburi"
	dmath "github.com/yohamta/donburi/features/math"
)

// EntityView is the render-ready state of one remote entity.
type EntityView struct {
	ID           uint32
	Kind         messages.EntityKind
	Position     dmath.Vec2
	Rotation     float64
	Extrapolated bool
	Alive        bool
	Health       int32
	MaxHealth    int32
	Level        int32
	Attacking    bool
}

// EntityRegistry maps server entity ids to donburi entities carrying the
// per-entity sample buffers. The local player is never admitted.
type EntityRegistry struct {
	world  donburi.World
	index  map[uint32]donburi.Entity
	selfID uint32

	buffer         network.BufferConfig
	attackEstimate time.Duration
}

func NewEntityRegistry(c config.Config) *EntityRegistry {
	return &EntityRegistry{
		world:          donburi.NewWorld(),
		index:          make(map[uint32]donburi.Entity),
		buffer:         network.BufferConfigFrom(c),
		attackEstimate: time.Duration(c.AttackEstimateMs) * time.Millisecond,
	}
}

// SetSelf records the local player's id and evicts it if it was tracked.
func (r *EntityRegistry) SetSelf(id uint32) {
	r.selfID = id
	r.Remove(id)
}

// Apply folds one authoritative entity state into the registry, creating the
// entity on first sighting. fields selects which parts of s are meaningful.
// It returns false for the local player.
func (r *EntityRegistry) Apply(s messages.EntityState, fields messages.FieldMask, serverMs int64, now time.Time) bool {
	if s.ID == r.selfID {
		return false
	}
	entry := r.ensure(s.ID, s.Kind)

	ent := components.NetEntity.Get(entry)
	if fields.Has(messages.FieldAlive) {
		ent.Alive = s.Alive
	}
	if fields.Has(messages.FieldHealth) {
		ent.Health = s.Health
		ent.MaxHealth = s.MaxHealth
	}

	if fields.Has(messages.FieldPosition) {
		buf := components.NetSamples.Get(entry)
		rot := s.Rotation
		if !fields.Has(messages.FieldRotation) {
			if latest, ok := buf.Latest(); ok {
				rot = latest.Rotation
			}
			if fields.Has(messages.FieldVelocity) && (s.VelX != 0 || s.VelY != 0) {
				rot = gamemath.Heading(dmath.Vec2{X: s.VelX, Y: s.VelY})
			}
		}
		if buf.Push(dmath.Vec2{X: s.X, Y: s.Y}, rot, serverMs) && fields.Has(messages.FieldVelocity) {
			buf.Seed(dmath.Vec2{X: s.VelX, Y: s.VelY})
		}
	}

	attack := components.NetAttack.Get(entry)
	if s.Attacking != nil {
		attack.Sync(*s.Attacking)
	} else if fields.Has(messages.FieldAttack) && s.AttackTrigger {
		attack.Trigger(now)
	}
	return true
}

// ApplyHealth updates health for a known entity.
func (r *EntityRegistry) ApplyHealth(ev messages.EntityHealth) bool {
	entry, ok := r.entry(ev.ID)
	if !ok {
		return false
	}
	ent := components.NetEntity.Get(entry)
	ent.Health = ev.Health
	ent.MaxHealth = ev.MaxHealth
	return true
}

// ApplyDeath marks a known entity dead. The entity stays tracked until the
// server removes it.
func (r *EntityRegistry) ApplyDeath(ev messages.EntityDeath) bool {
	entry, ok := r.entry(ev.ID)
	if !ok {
		return false
	}
	ent := components.NetEntity.Get(entry)
	ent.Alive = false
	ent.Health = 0
	return true
}

func (r *EntityRegistry) ApplyLevel(ev messages.LevelUp) bool {
	entry, ok := r.entry(ev.ID)
	if !ok {
		return false
	}
	ent := components.NetEntity.Get(entry)
	ent.Level = ev.Level
	ent.MaxHealth = ev.MaxHealth
	return true
}

// Remove drops the given ids.
func (r *EntityRegistry) Remove(ids ...uint32) {
	for _, id := range ids {
		e, ok := r.index[id]
		if !ok {
			continue
		}
		if r.world.Valid(e) {
			r.world.Remove(e)
		}
		delete(r.index, id)
	}
}

// Retain drops every entity whose id is not in keep. Used after a full
// snapshot, which lists every live entity.
func (r *EntityRegistry) Retain(keep map[uint32]struct{}) {
	for id := range r.index {
		if _, ok := keep[id]; !ok {
			r.Remove(id)
		}
	}
}

func (r *EntityRegistry) Clear() {
	r.Remove(r.IDs()...)
	r.selfID = 0
}

func (r *EntityRegistry) Len() int {
	return len(r.index)
}

// IDs returns the tracked ids in ascending order.
func (r *EntityRegistry) IDs() []uint32 {
	ids := make([]uint32, 0, len(r.index))
	for id := range r.index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// View samples one entity at renderMs. ok is false for unknown ids and for
// entities that have no position yet.
func (r *EntityRegistry) View(id uint32, renderMs float64, now time.Time) (EntityView, bool) {
	entry, ok := r.entry(id)
	if !ok {
		return EntityView{}, false
	}
	pose, ok := components.NetSamples.Get(entry).Sample(renderMs)
	if !ok {
		return EntityView{}, false
	}
	ent := components.NetEntity.Get(entry)
	return EntityView{
		ID:           ent.ID,
		Kind:         ent.Kind,
		Position:     pose.Position,
		Rotation:     pose.Rotation,
		Extrapolated: pose.Extrapolated,
		Alive:        ent.Alive,
		Health:       ent.Health,
		MaxHealth:    ent.MaxHealth,
		Level:        ent.Level,
		Attacking:    components.NetAttack.Get(entry).Active(now),
	}, true
}

// Views samples every renderable entity, ordered by id.
func (r *EntityRegistry) Views(renderMs float64, now time.Time) []EntityView {
	out := make([]EntityView, 0, len(r.index))
	for _, id := range r.IDs() {
		if v, ok := r.View(id, renderMs, now); ok {
			out = append(out, v)
		}
	}
	return out
}

func (r *EntityRegistry) entry(id uint32) (*donburi.Entry, bool) {
	e, ok := r.index[id]
	if !ok || !r.world.Valid(e) {
		return nil, false
	}
	return r.world.Entry(e), true
}

func (r *EntityRegistry) ensure(id uint32, kind messages.EntityKind) *donburi.Entry {
	if entry, ok := r.entry(id); ok {
		return entry
	}
	entry := archetypes.ForKind(kind).Spawn(r.world)
	components.NetEntity.SetValue(entry, components.NetEntityData{ID: id, Kind: kind, Alive: true})
	components.NetSamples.SetValue(entry, network.NewEntityBuffer(r.buffer))
	components.NetAttack.SetValue(entry, network.NewAttackState(r.attackEstimate))
	r.index[id] = entry.Entity()
	return entry
}
