package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxeldelve/mapsync/engine/config"
	"github.com/voxeldelve/mapsync/engine/consts"
	"github.com/voxeldelve/mapsync/engine/netutil"
	"github.com/voxeldelve/mapsync/engine/proto"
)

func newTestService() *ServerService {
	cfg := &config.ServerConfig{
		Ip:           "127.0.0.1",
		GameplayPort: 14001,
		BulkPort:     14002,
	}
	ss := newServerService(cfg)
	ss.session = newTransferSession("map-test", make([]byte, consts.MAP_CHUNK_SIZE*3))
	return ss
}

// newTestProxy builds a proxy over an unread pipe; outgoing packets just queue
// up on the send channel
func newTestProxy(ss *ServerService, channel byte) *clientProxy {
	conn, _ := net.Pipe()
	cp := newClientProxy(netutil.NetConn{Conn: conn}, ss, channel)
	ss.registry.add(cp)
	return cp
}

func TestReconnectKeepsNewWorker(t *testing.T) {
	ss := newTestService()

	first := newTestProxy(ss, proto.CHANNEL_GAMEPLAY)
	ss.handleClientIdentification(first, "uid-1", "player", proto.CHANNEL_GAMEPLAY)
	require.NotNil(t, ss.session.workers["uid-1"])

	// the client reconnects before the old connection's close is handled
	second := newTestProxy(ss, proto.CHANNEL_GAMEPLAY)
	ss.handleClientIdentification(second, "uid-1", "player", proto.CHANNEL_GAMEPLAY)
	fresh := ss.session.workers["uid-1"]
	require.NotNil(t, fresh)

	// the stale connection's close must not take the fresh worker down
	ss.onClientProxyClose(first)
	assert.Equal(t, fresh, ss.session.workers["uid-1"])

	// a real disconnect still removes the worker
	ss.onClientProxyClose(second)
	assert.Nil(t, ss.session.workers["uid-1"])
}

func TestHeartbeatSparesBulkChannel(t *testing.T) {
	ss := newTestService()

	gameplay := newTestProxy(ss, proto.CHANNEL_GAMEPLAY)
	bulk := newTestProxy(ss, proto.CHANNEL_BULK)
	ss.handleClientIdentification(gameplay, "uid-1", "player", proto.CHANNEL_GAMEPLAY)
	ss.handleClientIdentification(bulk, "uid-1", "player", proto.CHANNEL_BULK)

	// the client heartbeats on the gameplay channel only, so a silent bulk
	// connection is not a timeout
	bulk.heartbeatTime = time.Now().Add(-consts.CLIENT_HEARTBEAT_TIMEOUT - time.Second)
	ss.checkHeartbeats()
	assert.False(t, bulk.IsClosed())
	assert.False(t, gameplay.IsClosed())

	// when the gameplay connection times out, the bulk sibling goes with it
	gameplay.heartbeatTime = time.Now().Add(-consts.CLIENT_HEARTBEAT_TIMEOUT - time.Second)
	ss.checkHeartbeats()
	assert.True(t, gameplay.IsClosed())
	assert.True(t, bulk.IsClosed())
}

func TestAnyMessageRefreshesHeartbeat(t *testing.T) {
	ss := newTestService()
	gameplay := newTestProxy(ss, proto.CHANNEL_GAMEPLAY)
	ss.handleClientIdentification(gameplay, "uid-1", "player", proto.CHANNEL_GAMEPLAY)

	gameplay.heartbeatTime = time.Now().Add(-time.Hour)
	pkt := netutil.NewPacket()
	pkt.AppendVarStr(proto.CLIENT_STATE_TRANSFERRING)
	ss.handleClientProxyMessage(clientProxyMessage{gameplay, proto.Message{MsgType: proto.MT_CLIENT_STATE_REPORT, Packet: pkt}})
	assert.True(t, time.Since(gameplay.heartbeatTime) < time.Minute)
}

func TestClientErrorRestartsTransfer(t *testing.T) {
	ss := newTestService()
	gameplay := newTestProxy(ss, proto.CHANNEL_GAMEPLAY)
	ss.handleClientIdentification(gameplay, "uid-1", "player", proto.CHANNEL_GAMEPLAY)
	failed := ss.session.workers["uid-1"]
	require.NotNil(t, failed)

	// a client reporting TransferError waits for a fresh announcement
	ss.handleClientStateReport(gameplay, proto.CLIENT_STATE_ERROR)
	restarted := ss.session.workers["uid-1"]
	require.NotNil(t, restarted)
	assert.True(t, failed != restarted)
	assert.Equal(t, workerPendingID, restarted.state)
}
