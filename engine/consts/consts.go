package consts

import "time"

// Tunable Options
const (
	// For Underlying Networking
	// BUFFERED_READ_BUFFSIZE is the read buffer size for buffered connections
	BUFFERED_READ_BUFFSIZE = 16384
	// BUFFERED_WRITE_BUFFSIZE is the write buffer size for buffered connections
	BUFFERED_WRITE_BUFFSIZE = 16384

	// GAMEPLAY_WRITE_BUFFER_SIZE is the TCP write buffer size of gameplay connections
	GAMEPLAY_WRITE_BUFFER_SIZE = 8192
	// GAMEPLAY_READ_BUFFER_SIZE is the TCP read buffer size of gameplay connections
	GAMEPLAY_READ_BUFFER_SIZE = 8192
	// GAMEPLAY_SET_TCP_NO_DELAY = true disables Nagle on gameplay connections
	GAMEPLAY_SET_TCP_NO_DELAY = true

	// BULK_WRITE_BUFFER_SIZE is the TCP write buffer size of bulk connections
	BULK_WRITE_BUFFER_SIZE = 65536
	// BULK_READ_BUFFER_SIZE is the TCP read buffer size of bulk connections
	BULK_READ_BUFFER_SIZE = 65536
	// BULK_BACKPRESSURE_THRESHOLD is the pending-write watermark above which a
	// transfer worker stops sending chunks for the rest of the tick (~88% of
	// the bulk write buffer)
	BULK_BACKPRESSURE_THRESHOLD = BULK_WRITE_BUFFER_SIZE * 88 / 100

	// SEND_QUEUE_CAPACITY is the max number of packets queued on one connection
	SEND_QUEUE_CAPACITY = 8192

	// For Map Transfer
	// MAP_CHUNK_SIZE is the payload size of one map chunk
	MAP_CHUNK_SIZE = 8192
	// MAX_CHUNKS_PER_TICK is the per-worker chunk send budget for one tick
	MAX_CHUNKS_PER_TICK = 8
	// TRANSFER_STALL_TIMEOUT fails a transfer that made no progress for too long
	TRANSFER_STALL_TIMEOUT = time.Second * 30
	// IDENTIFY_TIMEOUT bounds how long a transfer worker waits for the client's
	// bulk connection to identify itself before failing the transfer
	IDENTIFY_TIMEOUT = time.Second * 15

	// For Server Service
	// SERVER_PACKET_QUEUE_SIZE is the max inbound packet queue length for the server
	SERVER_PACKET_QUEUE_SIZE = 10000
	// SERVER_TICK_INTERVAL is the server main loop tick interval
	SERVER_TICK_INTERVAL = time.Millisecond * 50
	// PROGRESS_BROADCAST_INTERVAL is how often transfer progress of all clients
	// is broadcast on the gameplay channel
	PROGRESS_BROADCAST_INTERVAL = time.Second
	// LOAD_COLLECT_INTERVAL is how often server CPU load is sampled and broadcast
	LOAD_COLLECT_INTERVAL = time.Second * 5

	// For Client Service
	// CLIENT_PACKET_QUEUE_SIZE is the max inbound packet queue length for the client
	CLIENT_PACKET_QUEUE_SIZE = 10000
	// CLIENT_TICK_INTERVAL is the client main loop tick interval
	CLIENT_TICK_INTERVAL = time.Millisecond * 50
	// CLIENT_HEARTBEAT_INTERVAL is how often the client heartbeats on the gameplay channel
	CLIENT_HEARTBEAT_INTERVAL = time.Second * 5
	// CLIENT_HEARTBEAT_TIMEOUT is how long the server keeps a silent client
	CLIENT_HEARTBEAT_TIMEOUT = time.Second * 30
)

// Debug Options
const (
	// DEBUG_PACKETS prints packet send/recv debug logs
	DEBUG_PACKETS = false
	// DEBUG_CLIENTS prints client connect/disconnect debug logs
	DEBUG_CLIENTS = false
	// DEBUG_TRANSFER prints per-chunk transfer debug logs
	DEBUG_TRANSFER = false
)
