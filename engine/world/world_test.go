package world

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestMarshalUnmarshal(t *testing.T) {
	w := &World{
		MapID: GenMapID(),
		Seed:  12345,
		Depth: 3,
		Tiles: []Tile{
			{ID: 1, Kind: KindFloor, X: 0, Y: 0, Z: 0, Links: []uint32{2}},
			{ID: 2, Kind: KindWall, X: 1, Y: 0, Z: 0, Links: []uint32{1}},
			{ID: 3, Kind: KindStairs, X: 0, Y: 1, Z: 0},
		},
	}

	data, err := w.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	restored, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, restored.MapID, w.MapID)
	assert.Equal(t, restored.Seed, w.Seed)
	assert.Equal(t, restored.Depth, w.Depth)
	assert.Equal(t, len(restored.Tiles), 3)
	assert.Equal(t, restored.Tiles[0].Links[0], uint32(2))
	assert.Equal(t, restored.Tiles[2].Kind, KindStairs)
}

func TestUnmarshalMalformed(t *testing.T) {
	_, err := Unmarshal([]byte("this is not msgpack at all"))
	assert.T(t, err != nil, "unmarshal of malformed bytes should fail")
}

func TestUnmarshalMissingMapID(t *testing.T) {
	w := &World{Seed: 1}
	data, err := w.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	_, err = Unmarshal(data)
	assert.T(t, err != nil, "world without map ID should be rejected")
}

func TestGenMapIDUnique(t *testing.T) {
	assert.T(t, GenMapID() != GenMapID(), "map ids should be unique")
}
