package netutil

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"

	"github.com/voxeldelve/mapsync/engine/consts"
	"github.com/voxeldelve/mapsync/engine/msioutil"
	"github.com/voxeldelve/mapsync/engine/mslog"
)

// ErrConnectionClosed is returned when sending on a closed PacketConnection
var ErrConnectionClosed = errors.New("connection closed")

// PacketConnection is a connection that sends and receives data packets upon
// a network stream connection.
//
// Sends are queued and written by a dedicated goroutine; the number of bytes
// accepted but not yet written to the underlying connection is tracked and
// exposed through PendingWriteBytes, which is what transfer workers use for
// their backpressure gate.
type PacketConnection struct {
	conn         Connection
	sendChan     chan *Packet
	pendingBytes int64
	closed       xnsyncutil.AtomicBool
	closeOnce    sync.Once
}

// NewPacketConnection creates a packet connection based on network connection
func NewPacketConnection(conn Connection) *PacketConnection {
	pc := &PacketConnection{
		conn:     conn,
		sendChan: make(chan *Packet, consts.SEND_QUEUE_CAPACITY),
	}
	go pc.sendRoutine()
	return pc
}

// NewPacket allocates a new packet (usually for sending)
func (pc *PacketConnection) NewPacket() *Packet {
	return NewPacket()
}

// SendPacket queues a packet to be sent to remote
func (pc *PacketConnection) SendPacket(packet *Packet) error {
	if pc.closed.Load() {
		return ErrConnectionClosed
	}

	wireBytes := int64(SIZE_FIELD_SIZE) + int64(packet.GetPayloadLen())
	packet.AddRefCount(1)
	atomic.AddInt64(&pc.pendingBytes, wireBytes)

	select {
	case pc.sendChan <- packet:
		return nil
	default:
		atomic.AddInt64(&pc.pendingBytes, -wireBytes)
		packet.Release()
		return errors.Errorf("%s: send queue full", pc)
	}
}

// PendingWriteBytes returns the number of bytes queued for sending but not
// yet written to the underlying connection
func (pc *PacketConnection) PendingWriteBytes() int64 {
	return atomic.LoadInt64(&pc.pendingBytes)
}

func (pc *PacketConnection) sendRoutine() {
	defer pc.drainSendChan()

	for {
		packet := <-pc.sendChan
		if packet == nil { // close sentinel
			return
		}

		err := pc.writePacket(packet)
		atomic.AddInt64(&pc.pendingBytes, -(int64(SIZE_FIELD_SIZE) + int64(packet.GetPayloadLen())))
		packet.Release()

		if err != nil {
			if !IsConnectionError(err) {
				mslog.Errorf("%s: send failed: %v", pc, err)
			}
			return
		}

		if len(pc.sendChan) == 0 {
			if err := pc.conn.Flush(); err != nil && !IsConnectionError(err) {
				mslog.Errorf("%s: flush failed: %v", pc, err)
			}
		}
	}
}

// drainSendChan releases packets that were queued but will never be written,
// keeping refcounts and the pending byte count balanced after the send
// routine quits
func (pc *PacketConnection) drainSendChan() {
	for {
		select {
		case packet := <-pc.sendChan:
			if packet == nil {
				continue
			}
			atomic.AddInt64(&pc.pendingBytes, -(int64(SIZE_FIELD_SIZE) + int64(packet.GetPayloadLen())))
			packet.Release()
		default:
			return
		}
	}
}

func (pc *PacketConnection) writePacket(packet *Packet) error {
	var sizeBuf [SIZE_FIELD_SIZE]byte
	NETWORK_ENDIAN.PutUint32(sizeBuf[:], packet.GetPayloadLen())
	if err := msioutil.WriteAll(pc.conn, sizeBuf[:]); err != nil {
		return err
	}
	return msioutil.WriteAll(pc.conn, packet.Payload())
}

// RecvPacket receives the next packet, blocking until one arrives
func (pc *PacketConnection) RecvPacket() (*Packet, error) {
	var sizeBuf [SIZE_FIELD_SIZE]byte
	if err := msioutil.ReadAll(pc.conn, sizeBuf[:]); err != nil {
		return nil, err
	}

	payloadLen := NETWORK_ENDIAN.Uint32(sizeBuf[:])
	if payloadLen > MAX_PAYLOAD_LENGTH {
		return nil, errors.Errorf("packet too large: payload length %d", payloadLen)
	}

	packet := allocPacket()
	if err := msioutil.ReadAll(pc.conn, packet.extend(payloadLen)); err != nil {
		packet.Release()
		return nil, err
	}
	return packet, nil
}

// Close the connection
func (pc *PacketConnection) Close() (err error) {
	pc.closeOnce.Do(func() {
		pc.closed.Store(true)
		select {
		case pc.sendChan <- nil: // wake the send routine
		default: // queue full, send routine quits on write error after close
		}
		err = pc.conn.Close()
	})
	return
}

// RemoteAddr returns the remote address
func (pc *PacketConnection) RemoteAddr() net.Addr {
	return pc.conn.RemoteAddr()
}

// LocalAddr returns the local address
func (pc *PacketConnection) LocalAddr() net.Addr {
	return pc.conn.LocalAddr()
}

func (pc *PacketConnection) String() string {
	return fmt.Sprintf("[%s >>> %s]", pc.LocalAddr(), pc.RemoteAddr())
}
