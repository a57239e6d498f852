package server

import (
	"fmt"
	"time"

	"github.com/voxeldelve/mapsync/engine/common"
	"github.com/voxeldelve/mapsync/engine/consts"
	"github.com/voxeldelve/mapsync/engine/mslog"
	"github.com/voxeldelve/mapsync/engine/netutil"
	"github.com/voxeldelve/mapsync/engine/post"
	"github.com/voxeldelve/mapsync/engine/proto"
)

// clientProxy is the server-side proxy of one client connection (either the
// gameplay or the bulk connection of a client). clientUID stays nil until the
// client identifies itself on this connection.
type clientProxy struct {
	*proto.MapSyncConnection
	owner         *ServerService
	clientid      common.ClientID
	channel       byte
	clientUID     common.ClientUID
	heartbeatTime time.Time
	reportedState string
}

func newClientProxy(conn netutil.Connection, owner *ServerService, channel byte) *clientProxy {
	return &clientProxy{
		MapSyncConnection: proto.NewMapSyncConnection(conn),
		owner:             owner,
		clientid:          common.GenClientID(),
		channel:           channel,
		heartbeatTime:     time.Now(),
	}
}

func (cp *clientProxy) String() string {
	return fmt.Sprintf("clientProxy<%s|%s|ch%d>", cp.clientid, cp.clientUID, cp.channel)
}

// serve reads messages from the connection and funnels them to the owner's
// main routine. Runs on the connection's own goroutine; the main routine is
// the only consumer of the queue.
func (cp *clientProxy) serve() {
	defer func() {
		cp.Close()
		post.Post(func() {
			cp.owner.onClientProxyClose(cp)
		})

		err := recover()
		if err != nil && !netutil.IsConnectionError(err) {
			mslog.TraceError("%s: serve paniced: %v", cp, err)
		}
	}()

	for {
		msg, err := cp.RecvMsg()
		if err != nil {
			if netutil.IsConnectionError(err) {
				break
			} else {
				panic(err)
			}
		}

		if consts.DEBUG_PACKETS {
			mslog.Debugf("%s: recv msg %d", cp, msg.MsgType)
		}
		cp.owner.messageQueue <- clientProxyMessage{cp, msg}
	}
}
