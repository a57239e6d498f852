package config

import (
	"testing"

	"github.com/bmizerany/assert"
)

func init() {
	SetConfigFile("../../mapsync.ini.sample")
}

func TestGet(t *testing.T) {
	cfg := Get()
	if cfg == nil {
		t.Fatal("config is nil")
	}
	t.Logf("config: %s", DumpPretty(cfg))
	assert.Equal(t, cfg, Get()) // cached
}

func TestGetServer(t *testing.T) {
	sc := GetServer()
	assert.NotEqual(t, sc.GameplayPort, 0)
	assert.NotEqual(t, sc.BulkPort, 0)
	assert.NotEqual(t, sc.GameplayPort, sc.BulkPort)
	assert.NotEqual(t, sc.LogLevel, "")
}

func TestGetClient(t *testing.T) {
	cc := GetClient()
	assert.NotEqual(t, cc.ServerIp, "")
	assert.NotEqual(t, cc.GameplayPort, cc.BulkPort)
	assert.NotEqual(t, cc.PreferredName, "")
}

func TestReload(t *testing.T) {
	cfg1 := Get()
	cfg2 := Reload()
	assert.Equal(t, cfg1.Server.GameplayPort, cfg2.Server.GameplayPort)
}
