package systems

import (
	"math"
	"time"

	"github.com/automoto/doomerang-sync/config"
	"github.com/automoto/doomerang-sync/network"
	"github.com/automoto/doomerang-sync/shared/gamemath"
	"github.com/automoto/doomerang-sync/shared/leveldata"
	"github.com/automoto/doomerang-sync/shared/messages"
	"github.com/automoto/doomerang-sync/tags"
	"github.com/solarlune/resolv"
	dmath "github.com/yohamta/donburi/features/math"
)

// RTTSink receives round-trip samples measured on input acknowledgment.
type RTTSink interface {
	ObserveRTT(sample time.Duration)
}

// Predictor owns client-side prediction state for the local player.
type Predictor struct {
	Pending *network.InputBuffer

	Position    dmath.Vec2
	Rotation    float64
	Initialized bool // true after the first authoritative state was applied

	speed          float64
	halfW, halfH   float64
	worldW, worldH float64
	rtt            RTTSink

	// Collision space for prediction, nil without level data
	space   *resolv.Space
	body    *resolv.Object
	maxStep float64
}

func NewPredictor(c config.Config, rtt RTTSink) *Predictor {
	return &Predictor{
		Pending: network.NewInputBuffer(c.MaxPending),
		speed:   c.MoveSpeed,
		halfW:   c.BodyWidth / 2,
		halfH:   c.BodyHeight / 2,
		worldW:  c.WorldWidth,
		worldH:  c.WorldHeight,
		rtt:     rtt,
	}
}

// InitCollision builds a resolv.Space from the level's solids so prediction
// stops at walls the server also collides with. The level also replaces the
// configured world bounds.
func (p *Predictor) InitCollision(level *leveldata.CollisionData) {
	if level == nil {
		return
	}
	w, h := level.Bounds()
	p.worldW, p.worldH = w, h
	p.space = resolv.NewSpace(int(w), int(h), 16, 16)

	for _, r := range level.SolidRects {
		obj := resolv.NewObject(r.X, r.Y, r.W, r.H, tags.ResolvSolid)
		obj.SetShape(resolv.NewRectangle(0, 0, r.W, r.H))
		p.space.Add(obj)
	}

	p.maxStep = math.Min(p.halfW, p.halfH)
	if p.maxStep <= 0 {
		p.maxStep = 8
	}

	bw, bh := p.halfW*2, p.halfH*2
	p.body = resolv.NewObject(p.Position.X-p.halfW, p.Position.Y-p.halfH, bw, bh, tags.ResolvPlayer)
	p.body.SetShape(resolv.NewRectangle(0, 0, bw, bh))
	p.space.Add(p.body)
}

// Step integrates one movement step from the current predicted position.
func (p *Predictor) Step(dir dmath.Vec2, dt time.Duration) {
	if dt <= 0 {
		return
	}
	if !gamemath.IsZero(dir) {
		p.Rotation = gamemath.Heading(dir)
	}
	if p.body == nil {
		p.Position = gamemath.Integrate(p.Position, dir, p.speed, dt)
	} else {
		delta := dir.MulScalar(p.speed * dt.Seconds())
		p.body.X = p.Position.X - p.halfW
		p.body.Y = p.Position.Y - p.halfH
		p.body.Update()
		p.resolveAxis(delta.X, 0)
		p.resolveAxis(0, delta.Y)
		p.Position = dmath.Vec2{X: p.body.X + p.halfW, Y: p.body.Y + p.halfH}
	}
	p.Position = gamemath.ClampToBounds(p.Position, p.halfW, p.halfH, p.worldW, p.worldH)
}

// resolveAxis moves the body along one axis, stopping at the first solid.
// Check only looks at the destination cells, so long moves are split into
// steps no larger than half the body.
func (p *Predictor) resolveAxis(dx, dy float64) {
	dist := math.Abs(dx) + math.Abs(dy)
	if dist == 0 {
		return
	}
	steps := int(math.Ceil(dist / p.maxStep))
	sx, sy := dx/float64(steps), dy/float64(steps)

	for i := 0; i < steps; i++ {
		mx, my := sx, sy
		blocked := false
		if check := p.body.Check(mx, my, tags.ResolvSolid); check != nil {
			if solid := p.blocker(check.ObjectsByTags(tags.ResolvSolid), mx, my); solid != nil {
				contact := check.ContactWithObject(solid)
				mx = towards(mx, contact.X())
				my = towards(my, contact.Y())
				blocked = true
			}
		}
		p.body.X += mx
		p.body.Y += my
		p.body.Update()
		if blocked {
			return
		}
	}
}

// blocker returns the nearest solid the moved body would overlap. Check
// reports every solid sharing a cell, which is coarser than the shapes.
func (p *Predictor) blocker(solids []*resolv.Object, dx, dy float64) *resolv.Object {
	x, y := p.body.X+dx, p.body.Y+dy
	var best *resolv.Object
	bestDist := math.Inf(1)
	for _, o := range solids {
		if x >= o.X+o.W || x+p.body.W <= o.X || y >= o.Y+o.H || y+p.body.H <= o.Y {
			continue
		}
		if d := math.Abs(o.X-p.body.X) + math.Abs(o.Y-p.body.Y); d < bestDist {
			best, bestDist = o, d
		}
	}
	return best
}

// towards limits a move to the contact distance without reversing it.
func towards(move, contact float64) float64 {
	switch {
	case move > 0:
		return math.Max(0, math.Min(move, contact))
	case move < 0:
		return math.Min(0, math.Max(move, contact))
	default:
		return 0
	}
}

// Apply re-simulates a whole command.
func (p *Predictor) Apply(cmd network.InputCommand) {
	p.Step(cmd.Direction, cmd.Duration)
}

// Track retains a sent command until the server acknowledges it.
func (p *Predictor) Track(cmd network.InputCommand) {
	p.Pending.Add(cmd)
}

// Reconcile applies the authoritative state of the local entity: it samples
// the round trip of the acknowledged command, snaps to the server position,
// drops every acknowledged command and replays the rest in sequence order.
// It reports whether no unacknowledged input remains.
func (p *Predictor) Reconcile(state messages.EntityState, fields messages.FieldMask, lastProcessed uint32, now time.Time) bool {
	if cmd, ok := p.Pending.Get(lastProcessed); ok && p.rtt != nil {
		p.rtt.ObserveRTT(now.Sub(cmd.LocalTime))
	}

	snapped := fields.Has(messages.FieldPosition)
	if snapped {
		p.Position = dmath.Vec2{X: state.X, Y: state.Y}
		p.Initialized = true
	}
	if fields.Has(messages.FieldRotation) {
		p.Rotation = state.Rotation
	}

	p.Pending.Ack(lastProcessed)
	if snapped {
		for _, cmd := range p.Pending.Pending() {
			p.Apply(cmd)
		}
	}
	return p.Pending.Len() == 0
}

// Pose returns what the renderer should draw for the local player.
func (p *Predictor) Pose() network.Pose {
	return network.Pose{Position: p.Position, Rotation: p.Rotation}
}

func (p *Predictor) Reset() {
	p.Pending.Clear()
	p.Position = dmath.Vec2{}
	p.Rotation = 0
	p.Initialized = false
}
