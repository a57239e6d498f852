package client

import (
	"fmt"
	"net"
	"time"

	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	timer "github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/netconnutil"
	kcp "github.com/xtaci/kcp-go"

	"github.com/voxeldelve/mapsync/engine/chunkio"
	"github.com/voxeldelve/mapsync/engine/common"
	"github.com/voxeldelve/mapsync/engine/config"
	"github.com/voxeldelve/mapsync/engine/consts"
	"github.com/voxeldelve/mapsync/engine/mslog"
	"github.com/voxeldelve/mapsync/engine/netutil"
	"github.com/voxeldelve/mapsync/engine/post"
	"github.com/voxeldelve/mapsync/engine/proto"
	"github.com/voxeldelve/mapsync/engine/statemgr"
	"github.com/voxeldelve/mapsync/engine/world"
)

// WorldBuilder turns a received world snapshot into game assets. Games plug
// their own builder in; the default builder just keeps the world in memory.
type WorldBuilder interface {
	BuildWorld(w *world.World) error
	ResetWorld()
}

type memoryWorldBuilder struct {
	world *world.World
}

func (b *memoryWorldBuilder) BuildWorld(w *world.World) error {
	b.world = w
	mslog.Infof("built %s", w)
	return nil
}

func (b *memoryWorldBuilder) ResetWorld() {
	b.world = nil
}

// transferAnnouncement is one MT_TRANSFER_BEGIN as received
type transferAnnouncement struct {
	mapID       common.MapID
	totalChunks uint32
	totalSize   uint64
}

// MapClient is the client side of the map transfer protocol: it keeps a
// gameplay connection and an on-demand bulk connection to the server, funnels
// all received messages into a single queue, and drives the transfer and
// regen state machines from its tick routine. All state is owned by the tick
// routine.
type MapClient struct {
	cfg       *config.ClientConfig
	clientUID common.ClientUID

	gameplayConn *proto.MapSyncConnection
	bulkConn     *proto.MapSyncConnection
	dialBulkFn   func() (*proto.MapSyncConnection, error)
	packetQueue  chan proto.Message

	transferMgr *statemgr.StateManager
	regenMgr    *statemgr.StateManager
	builder     WorldBuilder

	announcement  *transferAnnouncement
	buffer        *chunkio.ReassemblyBuffer
	pendingWorld  *world.World
	currentMapID  common.MapID
	keepWorld     bool
	lastChunkTime time.Time

	otherProgress map[string]uint32
	serverLoad    proto.ServerLoadInfo

	terminating xnsyncutil.AtomicBool
	terminated  *xnsyncutil.OneTimeCond
}

func newMapClient(cfg *config.ClientConfig) *MapClient {
	c := &MapClient{
		cfg:         cfg,
		clientUID:   common.GenClientUID(),
		packetQueue: make(chan proto.Message, consts.CLIENT_PACKET_QUEUE_SIZE),
		builder:     &memoryWorldBuilder{},
		terminated:  xnsyncutil.NewOneTimeCond(),
	}
	c.dialBulkFn = func() (*proto.MapSyncConnection, error) {
		return c.dialServer(c.cfg.BulkPort, false)
	}

	c.transferMgr = newTransferStateManager(c)
	c.regenMgr = newRegenStateManager(c)
	c.transferMgr.AddListener(c)
	return c
}

func (c *MapClient) String() string {
	return fmt.Sprintf("MapClient<%s>", c.clientUID)
}

// TransferState returns the current transfer state
func (c *MapClient) TransferState() statemgr.State {
	return c.transferMgr.CurrentState()
}

// CurrentMapID returns the map the client last finished building
func (c *MapClient) CurrentMapID() common.MapID {
	return c.currentMapID
}

// OtherClientProgress returns the latest per-client progress broadcast
func (c *MapClient) OtherClientProgress() map[string]uint32 {
	return c.otherProgress
}

// ServerLoad returns the latest server load broadcast
func (c *MapClient) ServerLoad() proto.ServerLoadInfo {
	return c.serverLoad
}

func (c *MapClient) run() {
	timer.AddTimer(consts.CLIENT_HEARTBEAT_INTERVAL, c.sendHeartbeat)

	lastTick := time.Now()
	ticker := time.Tick(consts.CLIENT_TICK_INTERVAL)
	for {
		select {
		case msg := <-c.packetQueue:
			c.handleMessage(msg)
		case <-ticker:
			if c.terminating.Load() {
				c.doTerminate()
				return
			}

			timer.Tick()
			now := time.Now()
			c.tick(now.Sub(lastTick))
			lastTick = now
		}

		post.Tick()
	}
}

// tick advances both state machines by dt
func (c *MapClient) tick(dt time.Duration) {
	c.transferMgr.Update(dt)
	c.regenMgr.Update(dt)
}

func (c *MapClient) terminate() {
	c.terminating.Store(true)
}

func (c *MapClient) doTerminate() {
	post.Tick()
	if c.gameplayConn != nil {
		c.gameplayConn.Close()
	}
	if c.bulkConn != nil {
		c.bulkConn.Close()
	}
	mslog.Infof("%s: terminated", c)
	c.terminated.Signal()
}

// connectGameplay dials the gameplay connection and identifies on it
func (c *MapClient) connectGameplay() error {
	conn, err := c.dialServer(c.cfg.GameplayPort, c.cfg.UseKCP)
	if err != nil {
		return err
	}

	c.gameplayConn = conn
	if err := conn.SendClientIdentification(c.clientUID, c.cfg.PreferredName, proto.CHANNEL_GAMEPLAY); err != nil {
		return err
	}

	mslog.Infof("%s: gameplay connection established: %s", c, conn)
	go c.recvLoop(conn)
	return nil
}

// connectBulk dials the bulk connection on demand: it is only established
// when a transfer actually needs it, and reused across transfers
func (c *MapClient) connectBulk() error {
	if c.bulkConn != nil && !c.bulkConn.IsClosed() {
		return nil
	}
	if c.dialBulkFn == nil {
		return nil
	}

	conn, err := c.dialBulkFn()
	if err != nil {
		return err
	}
	if conn == nil {
		return nil
	}

	c.bulkConn = conn
	if err := conn.SendClientIdentification(c.clientUID, c.cfg.PreferredName, proto.CHANNEL_BULK); err != nil {
		return err
	}

	mslog.Infof("%s: bulk connection established: %s", c, conn)
	go c.recvLoop(conn)
	return nil
}

func (c *MapClient) dialServer(port int, useKCP bool) (*proto.MapSyncConnection, error) {
	var conn net.Conn
	var err error

	if useKCP {
		addr := fmt.Sprintf("%s:%d", c.cfg.ServerIp, port)
		kcpConn, kcpErr := kcp.DialWithOptions(addr, nil, 10, 3)
		if kcpErr != nil {
			return nil, kcpErr
		}
		kcpConn.SetStreamMode(true)
		kcpConn.SetWriteDelay(false)
		kcpConn.SetNoDelay(1, 10, 2, 1)
		conn = kcpConn
	} else {
		conn, err = netutil.ConnectTCP(c.cfg.ServerIp, port)
		if err != nil {
			return nil, err
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(consts.GAMEPLAY_SET_TCP_NO_DELAY)
		}
	}

	conn = netconnutil.NewNoTempErrorConn(conn)
	var netconn netutil.Connection = netutil.NetConn{Conn: conn}
	if c.cfg.CompressConnection {
		netconn = netconnutil.NewSnappyConn(netconn)
	}
	netconn = netconnutil.NewBufferedConn(netconn, consts.BUFFERED_READ_BUFFSIZE, consts.BUFFERED_WRITE_BUFFSIZE)
	return proto.NewMapSyncConnection(netconn), nil
}

// recvLoop reads messages from one connection and funnels them into the
// packet queue. Both connections feed the same queue; the tick routine is the
// single consumer.
func (c *MapClient) recvLoop(conn *proto.MapSyncConnection) {
	defer func() {
		conn.Close()
		err := recover()
		if err != nil && !netutil.IsConnectionError(err) {
			mslog.TraceError("%s: recv loop paniced: %v", c, err)
		}
	}()

	for {
		msg, err := conn.RecvMsg()
		if err != nil {
			if netutil.IsConnectionError(err) {
				break
			} else {
				panic(err)
			}
		}
		c.packetQueue <- msg
	}
}

func (c *MapClient) handleMessage(msg proto.Message) {
	pkt := msg.Packet
	defer pkt.Release()

	switch msg.MsgType {
	case proto.MT_TRANSFER_BEGIN:
		ann := transferAnnouncement{
			mapID:       common.MapID(pkt.ReadVarStr()),
			totalChunks: pkt.ReadUint32(),
			totalSize:   pkt.ReadUint64(),
		}
		c.onTransferBegin(ann)
	case proto.MT_MAP_CHUNK:
		mapID := common.MapID(pkt.ReadVarStr())
		chunkIndex := pkt.ReadUint32()
		pkt.ReadUint32() // totalChunks, the announcement is authoritative
		payload := pkt.ReadVarBytes()
		c.onMapChunk(mapID, chunkIndex, payload)
	case proto.MT_TRANSFER_COMPLETE:
		c.onTransferComplete(common.MapID(pkt.ReadVarStr()))
	case proto.MT_ALL_CLIENT_PROGRESS:
		progress := map[string]uint32{}
		pkt.ReadData(&progress)
		c.otherProgress = progress
	case proto.MT_SERVER_LOAD_INFO:
		pkt.ReadData(&c.serverLoad)
	default:
		mslog.TraceError("%s: unknown msgtype: %v", c, msg.MsgType)
	}
}

// onTransferBegin starts a transfer. Any announcement arriving while a
// transfer is already in flight is ignored, whatever map it names; the server
// announces again once the client reports a terminal state.
func (c *MapClient) onTransferBegin(ann transferAnnouncement) {
	if c.isTransferInFlight() {
		mslog.Warnf("%s: transfer announcement for %s while %s, ignored", c, ann.mapID, c.transferMgr.CurrentState())
		return
	}

	mslog.Infof("%s: transfer announced: map %s, %d chunks, %d bytes", c, ann.mapID, ann.totalChunks, ann.totalSize)
	c.announcement = &ann
	if !c.transferMgr.RequestStateChange(stateTransferInitiated) {
		mslog.Errorf("%s: could not start transfer of %s from state %s", c, ann.mapID, c.transferMgr.CurrentState())
	}
}

func (c *MapClient) isTransferInFlight() bool {
	switch c.transferMgr.CurrentState() {
	case stateTransferInitiated, stateTransferring, stateReassembling, stateBuildingAssets:
		return true
	}
	return false
}

// onMapChunk applies one received chunk to the reassembly buffer. Duplicate
// chunks are no-ops; chunks for other maps are dropped.
func (c *MapClient) onMapChunk(mapID common.MapID, chunkIndex uint32, payload []byte) {
	if c.buffer == nil || c.buffer.MapID() != mapID {
		mslog.Warnf("%s: dropping chunk %d of unexpected map %s", c, chunkIndex, mapID)
		return
	}

	fresh, err := c.buffer.PutChunk(int(chunkIndex), payload)
	if err != nil {
		mslog.Errorf("%s: bad chunk: %v", c, err)
		c.transferMgr.RequestStateChange(stateTransferError)
		return
	}
	if !fresh {
		return
	}

	c.lastChunkTime = time.Now()
	c.transferMgr.SetProgress(c.buffer.Progress(),
		fmt.Sprintf("%d/%d chunks", c.buffer.ChunksReceived(), c.buffer.TotalChunks()))

	if consts.DEBUG_TRANSFER {
		mslog.Debugf("%s: chunk %d of %s received", c, chunkIndex, mapID)
	}
}

// onTransferComplete is informational: completion is driven by the client's
// own chunk accounting, not by the server's notification
func (c *MapClient) onTransferComplete(mapID common.MapID) {
	if c.buffer != nil && !c.buffer.IsComplete() {
		mslog.Warnf("%s: server finished sending %s but only %d/%d chunks arrived",
			c, mapID, c.buffer.ChunksReceived(), c.buffer.TotalChunks())
		return
	}
	mslog.Debugf("%s: server finished sending %s", c, mapID)
}

// RequestMapRegen asks the server to regenerate the map and starts tracking
// the regen flow
func (c *MapClient) RequestMapRegen() error {
	if c.gameplayConn == nil {
		return netutil.ErrConnectionClosed
	}
	if err := c.gameplayConn.SendMapRegenRequest(); err != nil {
		return err
	}
	c.regenMgr.RequestStateChange(stateRegenCleanup)
	return nil
}

// OnStateChanged implements statemgr.StateListener: every transfer state
// change is reported to the server on the gameplay channel
func (c *MapClient) OnStateChanged(old statemgr.State, new_ statemgr.State, ctx *statemgr.StateContext) {
	mslog.Infof("%s: transfer state %s -> %s", c, old, new_)
	if c.gameplayConn != nil {
		if err := c.gameplayConn.SendClientStateReport(string(new_)); err != nil {
			mslog.Errorf("%s: state report failed: %v", c, err)
		}
	}

	c.trackRegenProgress(new_)
}

// OnStateProgressUpdated implements statemgr.StateListener
func (c *MapClient) OnStateProgressUpdated(ctx *statemgr.StateContext) {
	if consts.DEBUG_TRANSFER {
		mslog.Debugf("%s: %s %.0f%% (%s)", c, ctx.CurrentState(), ctx.Progress()*100, ctx.StatusMessage())
	}
}

func (c *MapClient) sendHeartbeat() {
	if c.gameplayConn == nil {
		return
	}
	if err := c.gameplayConn.SendHeartbeat(); err != nil {
		mslog.Errorf("%s: heartbeat failed: %v", c, err)
	}
}
