package proto

import (
	"github.com/voxeldelve/mapsync/engine/netutil"
)

// MsgType is the type of message types
type MsgType uint16

const (
	// MT_INVALID is the invalid message type
	MT_INVALID MsgType = iota
	// MT_CLIENT_IDENTIFICATION is sent by the client on each of its connections
	// right after connecting, carrying the stable client unique ID that
	// correlates the gameplay and bulk connections
	MT_CLIENT_IDENTIFICATION
	// MT_CLIENT_STATE_REPORT is sent by the client on the gameplay connection
	// whenever its transfer state machine changes state
	MT_CLIENT_STATE_REPORT
	// MT_HEARTBEAT_FROM_CLIENT is sent by client to notify the server that the client is alive
	MT_HEARTBEAT_FROM_CLIENT
	// MT_MAP_REGEN_REQUEST asks the server to regenerate the map and redistribute it
	MT_MAP_REGEN_REQUEST
	// MT_TRANSFER_BEGIN announces a map transfer on the gameplay connection
	MT_TRANSFER_BEGIN
	// MT_MAP_CHUNK carries one chunk of the serialized map, normally on the
	// bulk connection
	MT_MAP_CHUNK
	// MT_TRANSFER_COMPLETE tells the client all chunks of a map were sent
	MT_TRANSFER_COMPLETE
	// MT_ALL_CLIENT_PROGRESS broadcasts every client's chunk progress
	MT_ALL_CLIENT_PROGRESS
	// MT_SERVER_LOAD_INFO broadcasts server load info
	MT_SERVER_LOAD_INFO
)

// Channel kinds carried in MT_CLIENT_IDENTIFICATION
const (
	// CHANNEL_GAMEPLAY is the low-latency control/position channel
	CHANNEL_GAMEPLAY byte = 1
	// CHANNEL_BULK is the high-throughput chunk payload channel
	CHANNEL_BULK byte = 2
)

// Client transfer state names carried in MT_CLIENT_STATE_REPORT. The client's
// transfer state machine uses the same names, so the server sees the client's
// states verbatim.
const (
	CLIENT_STATE_IDLE            = "Idle"
	CLIENT_STATE_INITIATED       = "TransferInitiated"
	CLIENT_STATE_TRANSFERRING    = "Transferring"
	CLIENT_STATE_REASSEMBLING    = "Reassembling"
	CLIENT_STATE_BUILDING_ASSETS = "BuildingAssets"
	CLIENT_STATE_COMPLETE        = "TransferComplete"
	CLIENT_STATE_ERROR           = "TransferError"
)

// Message is one received message with its packet, queued for the main tick routine
type Message struct {
	MsgType MsgType
	Packet  *netutil.Packet
}

// ServerLoadInfo defines the info for server load broadcasts
type ServerLoadInfo struct {
	CPUPercent float64 `msgpack:"cp"`
}
