package tags

import "github.com/yohamta/donburi"

var (
	RemotePlayer = donburi.NewTag().SetName("RemotePlayer")
	RemoteEnemy  = donburi.NewTag().SetName("RemoteEnemy")
)

// Resolv tags for prediction collision
const (
	ResolvSolid  = "solid"
	ResolvPlayer = "Player"
)
