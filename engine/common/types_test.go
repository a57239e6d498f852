package common

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestGenClientID(t *testing.T) {
	id1 := GenClientID()
	id2 := GenClientID()
	assert.T(t, !id1.IsNil(), "client id should not be nil")
	assert.T(t, id1 != id2, "client ids should be unique")
	assert.Equal(t, len(id1), CLIENTID_LENGTH)
}

func TestGenClientUID(t *testing.T) {
	seen := map[ClientUID]struct{}{}
	for i := 0; i < 1000; i++ {
		uid := GenClientUID()
		if _, ok := seen[uid]; ok {
			t.Fatalf("duplicate client uid: %s", uid)
		}
		seen[uid] = struct{}{}
	}
}

func TestMapID(t *testing.T) {
	var id MapID
	assert.T(t, id.IsNil(), "zero MapID should be nil")
	assert.T(t, !MapID("map-42").IsNil(), "MapID should not be nil")
}
