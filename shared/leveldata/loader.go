package leveldata

import (
	"io/fs"
	"sort"

	"github.com/lafriks/go-tiled"
	"github.com/rotisserie/eris"
)

const (
	collisionLayer = "collision"
	solidsGroup    = "Solids"
	spawnGroup     = "PlayerSpawn"
)

// LoadCollisionData parses a TMX file and returns collision data. It takes an
// fs.FS so callers can pass embed.FS or os.DirFS.
func LoadCollisionData(fsys fs.FS, tmxPath string) (*CollisionData, error) {
	levelMap, err := tiled.LoadFile(tmxPath, tiled.WithFileSystem(fsys))
	if err != nil {
		return nil, eris.Wrapf(err, "load TMX %s", tmxPath)
	}

	data := &CollisionData{
		MapWidth:  levelMap.Width * levelMap.TileWidth,
		MapHeight: levelMap.Height * levelMap.TileHeight,
	}

	// Solid tiles from the collision layer
	tileW := float64(levelMap.TileWidth)
	tileH := float64(levelMap.TileHeight)
	for _, layer := range levelMap.Layers {
		if layer.Name != collisionLayer {
			continue
		}
		for y := 0; y < levelMap.Height; y++ {
			for x := 0; x < levelMap.Width; x++ {
				idx := y*levelMap.Width + x
				if idx >= len(layer.Tiles) || layer.Tiles[idx].IsNil() {
					continue
				}
				data.SolidRects = append(data.SolidRects, SolidRect{
					X: float64(x) * tileW,
					Y: float64(y) * tileH,
					W: tileW,
					H: tileH,
				})
			}
		}
		break
	}

	for _, og := range levelMap.ObjectGroups {
		switch og.Name {
		case solidsGroup:
			for _, o := range og.Objects {
				if o.Width <= 0 || o.Height <= 0 {
					continue
				}
				data.SolidRects = append(data.SolidRects, SolidRect{X: o.X, Y: o.Y, W: o.Width, H: o.Height})
			}
		case spawnGroup:
			for _, o := range og.Objects {
				data.SpawnPoints = append(data.SpawnPoints, SpawnPoint{
					X:     o.X,
					Y:     o.Y,
					Index: o.Properties.GetInt("spawnIndex"),
				})
			}
		}
	}

	// Sort spawns by index, then left-to-right for consistent assignment
	sort.Slice(data.SpawnPoints, func(i, j int) bool {
		a, b := data.SpawnPoints[i], data.SpawnPoints[j]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.X < b.X
	})

	return data, nil
}
