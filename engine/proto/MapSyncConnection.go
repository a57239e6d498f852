package proto

import (
	"net"

	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"

	"github.com/voxeldelve/mapsync/engine/common"
	"github.com/voxeldelve/mapsync/engine/netutil"
)

// MapSyncConnection is the network protocol implementation shared by the
// server and the client: a packet connection plus one typed send method per
// message type
type MapSyncConnection struct {
	packetConn *netutil.PacketConnection
	closed     xnsyncutil.AtomicBool
}

// NewMapSyncConnection creates a MapSyncConnection using network connection
func NewMapSyncConnection(conn netutil.Connection) *MapSyncConnection {
	return &MapSyncConnection{
		packetConn: netutil.NewPacketConnection(conn),
	}
}

// SendClientIdentification sends MT_CLIENT_IDENTIFICATION message
func (mc *MapSyncConnection) SendClientIdentification(uid common.ClientUID, preferredName string, channel byte) error {
	packet := mc.packetConn.NewPacket()
	packet.AppendUint16(uint16(MT_CLIENT_IDENTIFICATION))
	packet.AppendVarStr(string(uid))
	packet.AppendVarStr(preferredName)
	packet.AppendByte(channel)
	return mc.SendPacketRelease(packet)
}

// SendClientStateReport sends MT_CLIENT_STATE_REPORT message
func (mc *MapSyncConnection) SendClientStateReport(state string) error {
	packet := mc.packetConn.NewPacket()
	packet.AppendUint16(uint16(MT_CLIENT_STATE_REPORT))
	packet.AppendVarStr(state)
	return mc.SendPacketRelease(packet)
}

// SendHeartbeat sends MT_HEARTBEAT_FROM_CLIENT message
func (mc *MapSyncConnection) SendHeartbeat() error {
	packet := mc.packetConn.NewPacket()
	packet.AppendUint16(uint16(MT_HEARTBEAT_FROM_CLIENT))
	return mc.SendPacketRelease(packet)
}

// SendMapRegenRequest sends MT_MAP_REGEN_REQUEST message
func (mc *MapSyncConnection) SendMapRegenRequest() error {
	packet := mc.packetConn.NewPacket()
	packet.AppendUint16(uint16(MT_MAP_REGEN_REQUEST))
	return mc.SendPacketRelease(packet)
}

// SendTransferBegin sends MT_TRANSFER_BEGIN message
func (mc *MapSyncConnection) SendTransferBegin(mapID common.MapID, totalChunks uint32, totalSize uint64) error {
	packet := mc.packetConn.NewPacket()
	packet.AppendUint16(uint16(MT_TRANSFER_BEGIN))
	packet.AppendVarStr(string(mapID))
	packet.AppendUint32(totalChunks)
	packet.AppendUint64(totalSize)
	return mc.SendPacketRelease(packet)
}

// SendMapChunk sends MT_MAP_CHUNK message
func (mc *MapSyncConnection) SendMapChunk(mapID common.MapID, chunkIndex uint32, totalChunks uint32, payload []byte) error {
	packet := mc.packetConn.NewPacket()
	packet.AppendUint16(uint16(MT_MAP_CHUNK))
	packet.AppendVarStr(string(mapID))
	packet.AppendUint32(chunkIndex)
	packet.AppendUint32(totalChunks)
	packet.AppendVarBytes(payload)
	return mc.SendPacketRelease(packet)
}

// SendTransferComplete sends MT_TRANSFER_COMPLETE message
func (mc *MapSyncConnection) SendTransferComplete(mapID common.MapID) error {
	packet := mc.packetConn.NewPacket()
	packet.AppendUint16(uint16(MT_TRANSFER_COMPLETE))
	packet.AppendVarStr(string(mapID))
	return mc.SendPacketRelease(packet)
}

// SendAllClientProgress sends MT_ALL_CLIENT_PROGRESS message
func (mc *MapSyncConnection) SendAllClientProgress(progress map[string]uint32) error {
	packet := mc.packetConn.NewPacket()
	packet.AppendUint16(uint16(MT_ALL_CLIENT_PROGRESS))
	packet.AppendData(progress)
	return mc.SendPacketRelease(packet)
}

// SendServerLoadInfo sends MT_SERVER_LOAD_INFO message
func (mc *MapSyncConnection) SendServerLoadInfo(info ServerLoadInfo) error {
	packet := mc.packetConn.NewPacket()
	packet.AppendUint16(uint16(MT_SERVER_LOAD_INFO))
	packet.AppendData(info)
	return mc.SendPacketRelease(packet)
}

// SendPacket sends one packet
func (mc *MapSyncConnection) SendPacket(packet *netutil.Packet) error {
	return mc.packetConn.SendPacket(packet)
}

// SendPacketRelease sends one packet and releases it
func (mc *MapSyncConnection) SendPacketRelease(packet *netutil.Packet) error {
	err := mc.packetConn.SendPacket(packet)
	packet.Release()
	return err
}

// RecvMsg receives the next message with its packet. The packet must be
// released by the caller.
func (mc *MapSyncConnection) RecvMsg() (Message, error) {
	packet, err := mc.packetConn.RecvPacket()
	if err != nil {
		return Message{}, err
	}
	msgtype := MsgType(packet.ReadUint16())
	return Message{msgtype, packet}, nil
}

// PendingWriteBytes returns the bytes queued on this connection but not yet
// written to the network
func (mc *MapSyncConnection) PendingWriteBytes() int64 {
	return mc.packetConn.PendingWriteBytes()
}

// Close the connection
func (mc *MapSyncConnection) Close() error {
	mc.closed.Store(true)
	return mc.packetConn.Close()
}

// IsClosed returns if the connection is closed
func (mc *MapSyncConnection) IsClosed() bool {
	return mc.closed.Load()
}

// RemoteAddr returns the remote address
func (mc *MapSyncConnection) RemoteAddr() net.Addr {
	return mc.packetConn.RemoteAddr()
}

// LocalAddr returns the local address
func (mc *MapSyncConnection) LocalAddr() net.Addr {
	return mc.packetConn.LocalAddr()
}

func (mc *MapSyncConnection) String() string {
	return mc.packetConn.String()
}
