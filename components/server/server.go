package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	timer "github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/netconnutil"
	kcp "github.com/xtaci/kcp-go"
	"golang.org/x/net/websocket"

	"github.com/voxeldelve/mapsync/engine/common"
	"github.com/voxeldelve/mapsync/engine/config"
	"github.com/voxeldelve/mapsync/engine/consts"
	"github.com/voxeldelve/mapsync/engine/mslog"
	"github.com/voxeldelve/mapsync/engine/netutil"
	"github.com/voxeldelve/mapsync/engine/post"
	"github.com/voxeldelve/mapsync/engine/proto"
)

type clientProxyMessage struct {
	cp  *clientProxy
	msg proto.Message
}

// ServerService is the map distribution server: it accepts gameplay and bulk
// connections on two listeners, correlates them by client identity, and
// streams the current map snapshot to every client through per-client
// transfer workers. All state is owned by the main routine; connection
// goroutines only feed the message queue.
type ServerService struct {
	cfg           *config.ServerConfig
	registry      *dualConnRegistry
	messageQueue  chan clientProxyMessage
	worldProvider WorldProvider
	session       *transferSession
	terminating   xnsyncutil.AtomicBool
	terminated    *xnsyncutil.OneTimeCond
}

func newServerService(cfg *config.ServerConfig) *ServerService {
	return &ServerService{
		cfg:           cfg,
		registry:      newDualConnRegistry(),
		messageQueue:  make(chan clientProxyMessage, consts.SERVER_PACKET_QUEUE_SIZE),
		worldProvider: newDefaultWorldProvider(),
		terminated:    xnsyncutil.NewOneTimeCond(),
	}
}

func (ss *ServerService) String() string {
	return fmt.Sprintf("ServerService<%s>", ss.cfg.Ip)
}

// channelListener accepts connections for one of the two channels
type channelListener struct {
	server  *ServerService
	channel byte
}

func (l *channelListener) ServeTCPConnection(conn net.Conn) {
	l.server.handleClientConnection(conn, l.channel)
}

func (ss *ServerService) run() {
	gameplayAddr := fmt.Sprintf("%s:%d", ss.cfg.Ip, ss.cfg.GameplayPort)
	bulkAddr := fmt.Sprintf("%s:%d", ss.cfg.Ip, ss.cfg.BulkPort)

	go netutil.ServeTCPForever(gameplayAddr, &channelListener{ss, proto.CHANNEL_GAMEPLAY})
	go netutil.ServeTCPForever(bulkAddr, &channelListener{ss, proto.CHANNEL_BULK})
	if ss.cfg.ServeKCP {
		go ss.serveKCPForever(gameplayAddr)
	}

	ss.startLoadMonitor(context.Background(), consts.LOAD_COLLECT_INTERVAL)

	timer.AddTimer(consts.PROGRESS_BROADCAST_INTERVAL, ss.broadcastProgress)
	if ss.cfg.HeartbeatCheckInterval > 0 {
		timer.AddTimer(time.Second*time.Duration(ss.cfg.HeartbeatCheckInterval), ss.checkHeartbeats)
	}

	// the server always has a current map to hand out
	ss.regenerateWorld()

	ticker := time.Tick(consts.SERVER_TICK_INTERVAL)
	for {
		select {
		case cpm := <-ss.messageQueue:
			ss.handleClientProxyMessage(cpm)
		case <-ticker:
			if ss.terminating.Load() {
				ss.doTerminate()
				return
			}

			timer.Tick()
			if ss.session != nil {
				ss.session.update(time.Now())
			}
		}

		// after handling packets or firing timers, check the posted functions
		post.Tick()
	}
}

func (ss *ServerService) terminate() {
	ss.terminating.Store(true)
}

func (ss *ServerService) doTerminate() {
	post.Tick() // consume all pending posts

	ss.registry.each(func(cp *clientProxy) {
		cp.Close()
	})
	mslog.Infof("%s: all client connections closed, server terminated", ss)
	ss.terminated.Signal()
}

func (ss *ServerService) handleClientConnection(conn net.Conn, channel byte) {
	if ss.terminating.Load() {
		conn.Close()
		return
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if channel == proto.CHANNEL_BULK {
			tcpConn.SetWriteBuffer(consts.BULK_WRITE_BUFFER_SIZE)
			tcpConn.SetReadBuffer(consts.BULK_READ_BUFFER_SIZE)
		} else {
			tcpConn.SetWriteBuffer(consts.GAMEPLAY_WRITE_BUFFER_SIZE)
			tcpConn.SetReadBuffer(consts.GAMEPLAY_READ_BUFFER_SIZE)
			tcpConn.SetNoDelay(consts.GAMEPLAY_SET_TCP_NO_DELAY)
		}
	}

	conn = netconnutil.NewNoTempErrorConn(conn)
	var netconn netutil.Connection = netutil.NetConn{Conn: conn}
	if ss.cfg.CompressConnection {
		netconn = netconnutil.NewSnappyConn(netconn)
	}
	netconn = netconnutil.NewBufferedConn(netconn, consts.BUFFERED_READ_BUFFSIZE, consts.BUFFERED_WRITE_BUFFSIZE)

	cp := newClientProxy(netconn, ss, channel)
	if consts.DEBUG_CLIENTS {
		mslog.Debugf("%s: new connection %s on channel %d", ss, cp, channel)
	}

	post.Post(func() {
		ss.registry.add(cp)
	})
	cp.serve()
}

// handleWebsocketConn serves browser clients on the gameplay channel
func (ss *ServerService) handleWebsocketConn(wsConn *websocket.Conn) {
	mslog.Debugf("%s: websocket connection: %s", ss, wsConn.RemoteAddr())
	wsConn.PayloadType = websocket.BinaryFrame
	ss.handleClientConnection(wsConn, proto.CHANNEL_GAMEPLAY)
}

func (ss *ServerService) serveKCPForever(listenAddr string) {
	for {
		err := ss.serveKCP(listenAddr)
		mslog.Errorf("%s: kcp server failed with error: %v, will restart", ss, err)
		time.Sleep(3 * time.Second)
	}
}

func (ss *ServerService) serveKCP(listenAddr string) error {
	listener, err := kcp.ListenWithOptions(listenAddr, nil, 10, 3)
	if err != nil {
		return err
	}
	mslog.Infof("Listening on KCP: %s ...", listenAddr)

	for {
		conn, err := listener.AcceptKCP()
		if err != nil {
			return err
		}

		conn.SetStreamMode(true)
		conn.SetWriteDelay(false)
		conn.SetNoDelay(1, 10, 2, 1)
		go ss.handleClientConnection(conn, proto.CHANNEL_GAMEPLAY)
	}
}

func (ss *ServerService) handleClientProxyMessage(cpm clientProxyMessage) {
	cp, msg := cpm.cp, cpm.msg
	pkt := msg.Packet
	defer pkt.Release()

	// any traffic proves the connection alive
	cp.heartbeatTime = time.Now()

	switch msg.MsgType {
	case proto.MT_CLIENT_IDENTIFICATION:
		uid := common.ClientUID(pkt.ReadVarStr())
		preferredName := pkt.ReadVarStr()
		channel := pkt.ReadOneByte()
		ss.handleClientIdentification(cp, uid, preferredName, channel)
	case proto.MT_CLIENT_STATE_REPORT:
		ss.handleClientStateReport(cp, pkt.ReadVarStr())
	case proto.MT_HEARTBEAT_FROM_CLIENT:
		// nothing to do, receipt alone refreshed heartbeatTime
	case proto.MT_MAP_REGEN_REQUEST:
		mslog.Infof("%s: map regen requested by %s", ss, cp)
		ss.regenerateWorld()
	default:
		mslog.TraceError("%s: unknown msgtype from %s: %v", ss, cp, msg.MsgType)
	}
}

func (ss *ServerService) handleClientIdentification(cp *clientProxy, uid common.ClientUID, preferredName string, channel byte) {
	if uid.IsNil() {
		mslog.Warnf("%s: identification with empty client UID, closing", cp)
		cp.Close()
		return
	}
	if channel != cp.channel {
		mslog.Warnf("%s: client declared channel %d on a channel-%d listener", cp, channel, cp.channel)
	}

	ss.registry.identify(cp, uid)
	cp.heartbeatTime = time.Now()
	mslog.Infof("%s: identified as %q on channel %d", cp, preferredName, cp.channel)

	if ss.session == nil {
		return
	}
	if cp.channel == proto.CHANNEL_BULK {
		// the worker may already be waiting for this bulk connection
		ss.session.attachBulk(uid, cp)
	} else {
		ss.startTransferFor(cp)
	}
}

func (ss *ServerService) handleClientStateReport(cp *clientProxy, state string) {
	cp.reportedState = state
	if cp.clientUID.IsNil() {
		mslog.Warnf("%s: state report before identification: %s", cp, state)
		return
	}
	if ss.session == nil {
		return
	}
	ss.session.setClientState(cp.clientUID, state)

	// a client in the error state dropped its transfer and waits for a fresh
	// announcement; give it one for the current map
	if state == proto.CLIENT_STATE_ERROR && cp.channel == proto.CHANNEL_GAMEPLAY {
		ss.startTransferFor(cp)
	}
}

// startTransferFor begins streaming the current map to one identified
// gameplay connection
func (ss *ServerService) startTransferFor(cp *clientProxy) {
	w := ss.session.addWorker(cp.clientUID, cp)
	if bulk := ss.registry.getBulk(cp.clientUID); bulk != nil {
		w.attachBulk(bulk)
	}
}

// regenerateWorld generates a fresh map snapshot and starts a new transfer
// session for it, superseding the previous one: every connected client is
// re-announced the new map and old workers are dropped wholesale.
func (ss *ServerService) regenerateWorld() {
	w, err := ss.worldProvider.GenerateWorld()
	if err != nil {
		mslog.Errorf("%s: world generation failed: %v", ss, err)
		return
	}

	blob, err := w.Marshal()
	if err != nil {
		mslog.Errorf("%s: marshal %s failed: %v", ss, w, err)
		return
	}

	ss.session = newTransferSession(w.MapID, blob)
	mslog.Infof("%s: distributing %s: %d bytes in %d chunks", ss, w, len(blob), len(ss.session.chunks))

	ss.registry.eachGameplay(func(cp *clientProxy) {
		ss.startTransferFor(cp)
	})
}

// broadcastProgress sends every client's transfer progress to all clients on
// the gameplay channel
func (ss *ServerService) broadcastProgress() {
	if ss.session == nil || len(ss.session.workers) == 0 {
		return
	}

	progress := ss.session.allProgress()
	ss.registry.eachGameplay(func(cp *clientProxy) {
		if err := cp.SendAllClientProgress(progress); err != nil {
			mslog.Errorf("%s: send progress failed: %v", cp, err)
		}
	})
}

// checkHeartbeats closes clients that stopped heartbeating
func (ss *ServerService) checkHeartbeats() {
	now := time.Now()
	ss.registry.each(func(cp *clientProxy) {
		if cp.channel == proto.CHANNEL_BULK {
			// clients heartbeat on the gameplay channel only; a bulk
			// connection lives and dies with its gameplay sibling
			return
		}
		if now.Sub(cp.heartbeatTime) > consts.CLIENT_HEARTBEAT_TIMEOUT {
			mslog.Warnf("%s: heartbeat timeout, closing", cp)
			if bulk := ss.registry.getBulk(cp.clientUID); bulk != nil {
				bulk.Close()
			}
			cp.Close()
		}
	})
}

func (ss *ServerService) onClientProxyClose(cp *clientProxy) {
	// on a reconnect the registration is replaced before the old connection's
	// close lands here; only the registered connection takes the worker down
	isCurrentGameplay := cp.channel == proto.CHANNEL_GAMEPLAY &&
		!cp.clientUID.IsNil() && ss.registry.getGameplay(cp.clientUID) == cp

	ss.registry.remove(cp)

	if ss.session != nil && isCurrentGameplay {
		ss.session.removeWorker(cp.clientUID)
	}

	if consts.DEBUG_CLIENTS {
		mslog.Debugf("%s: connection %s closed, last reported state %q", ss, cp, cp.reportedState)
	}
}
