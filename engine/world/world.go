package world

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"

	"github.com/voxeldelve/mapsync/engine/common"
	"github.com/voxeldelve/mapsync/engine/uuid"
)

// TileKind is the kind of one voxel tile
type TileKind uint8

const (
	// KindVoid is an empty cell
	KindVoid TileKind = iota
	// KindFloor is a walkable floor tile
	KindFloor
	// KindWall is a solid wall tile
	KindWall
	// KindDoor is a door tile
	KindDoor
	// KindStairs is a stairs tile connecting depths
	KindStairs
)

// Tile is one voxel tile of the dungeon graph
type Tile struct {
	ID    uint32   `msgpack:"id"`
	Kind  TileKind `msgpack:"k"`
	X     int32    `msgpack:"x"`
	Y     int32    `msgpack:"y"`
	Z     int32    `msgpack:"z"`
	Links []uint32 `msgpack:"ln"` // IDs of connected tiles
}

// World is one generated dungeon snapshot: a voxel-tile graph tagged with a
// stable map ID. A World is never mutated after generation; regeneration
// produces a new World with a new MapID.
type World struct {
	MapID common.MapID `msgpack:"mid"`
	Seed  int64        `msgpack:"sd"`
	Depth int32        `msgpack:"dp"`
	Tiles []Tile       `msgpack:"ts"`
}

// GenMapID generates a unique ID for a newly generated world
func GenMapID() common.MapID {
	return common.MapID("map-" + uuid.GenUUID())
}

// Marshal serializes the world to bytes
func (w *World) Marshal() ([]byte, error) {
	data, err := msgpack.Marshal(w)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal world %s", w.MapID)
	}
	return data, nil
}

// Unmarshal deserializes a world from bytes
func Unmarshal(data []byte) (*World, error) {
	var w World
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrap(err, "unmarshal world")
	}
	if w.MapID.IsNil() {
		return nil, errors.New("unmarshal world: missing map ID")
	}
	return &w, nil
}

func (w *World) String() string {
	return fmt.Sprintf("World<%s|%d tiles>", w.MapID, len(w.Tiles))
}
