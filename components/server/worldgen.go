package server

import (
	"math/rand"
	"time"

	"github.com/voxeldelve/mapsync/engine/world"
)

// WorldProvider supplies the map snapshots the server distributes. The
// default provider generates a random dungeon; games embed their own
// generator here.
type WorldProvider interface {
	GenerateWorld() (*world.World, error)
}

// defaultWorldProvider generates a random single-depth voxel dungeon: a
// bordered grid of floor tiles with scattered walls, a door and a stairs tile
type defaultWorldProvider struct {
	width  int32
	height int32
}

func newDefaultWorldProvider() *defaultWorldProvider {
	return &defaultWorldProvider{width: 64, height: 64}
}

func (p *defaultWorldProvider) GenerateWorld() (*world.World, error) {
	seed := time.Now().UnixNano()
	rnd := rand.New(rand.NewSource(seed))

	w := &world.World{
		MapID: world.GenMapID(),
		Seed:  seed,
		Depth: 1,
		Tiles: make([]world.Tile, 0, p.width*p.height),
	}

	var id uint32
	for y := int32(0); y < p.height; y++ {
		for x := int32(0); x < p.width; x++ {
			id++
			kind := world.KindFloor
			if x == 0 || y == 0 || x == p.width-1 || y == p.height-1 {
				kind = world.KindWall
			} else if rnd.Intn(100) < 12 {
				kind = world.KindWall
			}
			w.Tiles = append(w.Tiles, world.Tile{ID: id, Kind: kind, X: x, Y: y, Z: 0})
		}
	}

	// one way down somewhere inside the border
	stairs := &w.Tiles[p.tileIndex(1+rnd.Int31n(p.width-2), 1+rnd.Int31n(p.height-2))]
	stairs.Kind = world.KindStairs

	return w, nil
}

func (p *defaultWorldProvider) tileIndex(x, y int32) int32 {
	return y*p.width + x
}
