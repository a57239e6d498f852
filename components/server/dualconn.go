package server

import (
	"github.com/voxeldelve/mapsync/engine/common"
	"github.com/voxeldelve/mapsync/engine/consts"
	"github.com/voxeldelve/mapsync/engine/mslog"
	"github.com/voxeldelve/mapsync/engine/proto"
)

// dualConnRegistry tracks all client connections and correlates each client's
// gameplay and bulk connections. Correlation is solely by the client unique
// ID carried in the identification message: the registry never guesses by
// remote address. Only accessed from the main routine.
type dualConnRegistry struct {
	proxies       map[common.ClientID]*clientProxy
	gameplayByUID map[common.ClientUID]*clientProxy
	bulkByUID     map[common.ClientUID]*clientProxy
}

func newDualConnRegistry() *dualConnRegistry {
	return &dualConnRegistry{
		proxies:       map[common.ClientID]*clientProxy{},
		gameplayByUID: map[common.ClientUID]*clientProxy{},
		bulkByUID:     map[common.ClientUID]*clientProxy{},
	}
}

func (reg *dualConnRegistry) add(cp *clientProxy) {
	reg.proxies[cp.clientid] = cp
}

// identify binds the connection to the client's stable identity. If the
// client already has a connection on the same channel the old one is closed
// and replaced (reconnect).
func (reg *dualConnRegistry) identify(cp *clientProxy, uid common.ClientUID) {
	cp.clientUID = uid

	byUID := reg.gameplayByUID
	if cp.channel == proto.CHANNEL_BULK {
		byUID = reg.bulkByUID
	}

	if old := byUID[uid]; old != nil && old != cp {
		mslog.Warnf("%s: replacing connection %s on channel %d", cp, old, cp.channel)
		old.Close()
		delete(reg.proxies, old.clientid)
	}
	byUID[uid] = cp

	if consts.DEBUG_CLIENTS {
		mslog.Debugf("%s: identified on channel %d", cp, cp.channel)
	}
}

func (reg *dualConnRegistry) remove(cp *clientProxy) {
	delete(reg.proxies, cp.clientid)
	if cp.clientUID.IsNil() {
		return
	}

	if cp.channel == proto.CHANNEL_BULK {
		if reg.bulkByUID[cp.clientUID] == cp {
			delete(reg.bulkByUID, cp.clientUID)
		}
	} else {
		if reg.gameplayByUID[cp.clientUID] == cp {
			delete(reg.gameplayByUID, cp.clientUID)
		}
	}
}

// getGameplay returns the client's gameplay connection, nil if not identified yet
func (reg *dualConnRegistry) getGameplay(uid common.ClientUID) *clientProxy {
	return reg.gameplayByUID[uid]
}

// getBulk returns the client's bulk connection, nil until the client
// identifies its bulk connection
func (reg *dualConnRegistry) getBulk(uid common.ClientUID) *clientProxy {
	return reg.bulkByUID[uid]
}

// eachGameplay visits every identified gameplay connection
func (reg *dualConnRegistry) eachGameplay(f func(cp *clientProxy)) {
	for _, cp := range reg.gameplayByUID {
		f(cp)
	}
}

// each visits every connection, identified or not
func (reg *dualConnRegistry) each(f func(cp *clientProxy)) {
	for _, cp := range reg.proxies {
		f(cp)
	}
}
