// Package leveldata parses the collision-relevant parts of a Tiled level:
// world size, solid rectangles and spawn points. Pure data, no simulation.
package leveldata

// CollisionData holds all collision-relevant data parsed from a TMX level file.
type CollisionData struct {
	SolidRects  []SolidRect
	SpawnPoints []SpawnPoint
	MapWidth    int
	MapHeight   int
}

// SolidRect represents a rectangle the local player cannot enter.
type SolidRect struct {
	X, Y, W, H float64
}

// SpawnPoint represents a player spawn location.
type SpawnPoint struct {
	X, Y  float64
	Index int
}

// Bounds returns the playable area in world units.
func (c *CollisionData) Bounds() (width, height float64) {
	return float64(c.MapWidth), float64(c.MapHeight)
}
