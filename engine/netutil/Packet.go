package netutil

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/voxeldelve/mapsync/engine/mslog"
)

const (
	// MAX_PACKET_SIZE is the max total size of one packet on the wire
	MAX_PACKET_SIZE = 1 * 1024 * 1024
	// SIZE_FIELD_SIZE is the size of the payload length prefix
	SIZE_FIELD_SIZE = 4
	// MAX_PAYLOAD_LENGTH is the max payload size of one packet
	MAX_PAYLOAD_LENGTH = MAX_PACKET_SIZE - SIZE_FIELD_SIZE

	_MIN_PAYLOAD_CAP = 128
)

var (
	// NETWORK_ENDIAN is the byte order of all packet fields
	NETWORK_ENDIAN = binary.LittleEndian

	packetPool = sync.Pool{
		New: func() interface{} {
			p := &Packet{}
			p.payload = p.initialPayload[:0]
			return p
		},
	}
)

// Packet is a packet for sending data
type Packet struct {
	readCursor uint32
	refcount   int64

	payload        []byte
	initialPayload [_MIN_PAYLOAD_CAP]byte
}

func allocPacket() *Packet {
	pkt := packetPool.Get().(*Packet)
	if pkt.refcount != 0 {
		mslog.Panicf("packet must be released when allocated from pool, but refcount=%d", pkt.refcount)
	}
	pkt.refcount = 1
	return pkt
}

// NewPacket allocates a new packet from the packet pool
func NewPacket() *Packet {
	return allocPacket()
}

// AddRefCount adds reference count of packet
func (p *Packet) AddRefCount(add int64) {
	atomic.AddInt64(&p.refcount, add)
}

// Release releases the packet to the packet pool
func (p *Packet) Release() {
	refcount := atomic.AddInt64(&p.refcount, -1)

	if refcount == 0 {
		p.readCursor = 0
		p.payload = p.initialPayload[:0]
		packetPool.Put(p)
	} else if refcount < 0 {
		mslog.Panicf("releasing packet with refcount=%d", refcount)
	}
}

// Payload returns the total payload of packet
func (p *Packet) Payload() []byte {
	return p.payload
}

// GetPayloadLen returns the payload length
func (p *Packet) GetPayloadLen() uint32 {
	return uint32(len(p.payload))
}

// UnreadPayload returns the unread payload
func (p *Packet) UnreadPayload() []byte {
	return p.payload[p.readCursor:]
}

// HasUnreadPayload returns if all payload is read
func (p *Packet) HasUnreadPayload() bool {
	return p.readCursor < uint32(len(p.payload))
}

// ClearPayload clears packet payload
func (p *Packet) ClearPayload() {
	p.readCursor = 0
	p.payload = p.payload[:0]
}

func (p *Packet) extend(size uint32) []byte {
	payloadLen := uint32(len(p.payload))
	newLen := payloadLen + size
	if newLen > MAX_PAYLOAD_LENGTH {
		mslog.Panicf("packet payload too large: %d", newLen)
	}

	if newLen <= uint32(cap(p.payload)) {
		p.payload = p.payload[:newLen]
	} else {
		newPayload := make([]byte, newLen, cap(p.payload)*2+int(size))
		copy(newPayload, p.payload)
		p.payload = newPayload
	}
	return p.payload[payloadLen:newLen]
}

// AppendByte appends one byte to the end of payload
func (p *Packet) AppendByte(b byte) {
	p.extend(1)[0] = b
}

// ReadOneByte reads one byte from the beginning of unread payload
func (p *Packet) ReadOneByte() (v byte) {
	v = p.payload[p.readCursor]
	p.readCursor += 1
	return
}

// AppendBool appends one byte 1/0 to the end of payload
func (p *Packet) AppendBool(b bool) {
	if b {
		p.AppendByte(1)
	} else {
		p.AppendByte(0)
	}
}

// ReadBool reads one byte 1/0 from the beginning of unread payload
func (p *Packet) ReadBool() (v bool) {
	return p.ReadOneByte() != 0
}

// AppendUint16 appends one uint16 to the end of payload
func (p *Packet) AppendUint16(v uint16) {
	NETWORK_ENDIAN.PutUint16(p.extend(2), v)
}

// ReadUint16 reads one uint16 from the beginning of unread payload
func (p *Packet) ReadUint16() (v uint16) {
	v = NETWORK_ENDIAN.Uint16(p.payload[p.readCursor : p.readCursor+2])
	p.readCursor += 2
	return
}

// AppendUint32 appends one uint32 to the end of payload
func (p *Packet) AppendUint32(v uint32) {
	NETWORK_ENDIAN.PutUint32(p.extend(4), v)
}

// ReadUint32 reads one uint32 from the beginning of unread payload
func (p *Packet) ReadUint32() (v uint32) {
	v = NETWORK_ENDIAN.Uint32(p.payload[p.readCursor : p.readCursor+4])
	p.readCursor += 4
	return
}

// AppendUint64 appends one uint64 to the end of payload
func (p *Packet) AppendUint64(v uint64) {
	NETWORK_ENDIAN.PutUint64(p.extend(8), v)
}

// ReadUint64 reads one uint64 from the beginning of unread payload
func (p *Packet) ReadUint64() (v uint64) {
	v = NETWORK_ENDIAN.Uint64(p.payload[p.readCursor : p.readCursor+8])
	p.readCursor += 8
	return
}

// AppendBytes appends slice of bytes to the end of payload
func (p *Packet) AppendBytes(v []byte) {
	copy(p.extend(uint32(len(v))), v)
}

// ReadBytes reads bytes from the beginning of unread payload
func (p *Packet) ReadBytes(size uint32) []byte {
	if p.readCursor+size > uint32(len(p.payload)) {
		mslog.Panicf("Packet %p payload is %d, but reading %d+%d", p, len(p.payload), p.readCursor, size)
	}

	bytes := p.payload[p.readCursor : p.readCursor+size] // bytes are not copied
	p.readCursor += size
	return bytes
}

// AppendVarStr appends a varsize string to the end of payload
func (p *Packet) AppendVarStr(s string) {
	p.AppendVarBytes([]byte(s))
}

// ReadVarStr reads a varsize string from the beginning of unread payload
func (p *Packet) ReadVarStr() string {
	b := p.ReadVarBytes()
	return string(b)
}

// AppendVarBytes appends varsize bytes to the end of payload
func (p *Packet) AppendVarBytes(v []byte) {
	p.AppendUint32(uint32(len(v)))
	p.AppendBytes(v)
}

// ReadVarBytes reads a varsize slice of bytes from the beginning of unread payload
func (p *Packet) ReadVarBytes() []byte {
	blen := p.ReadUint32()
	return p.ReadBytes(blen)
}

// AppendData appends one data of any type to the end of payload
func (p *Packet) AppendData(msg interface{}) {
	dataBytes, err := MSG_PACKER.PackMsg(msg, nil)
	if err != nil {
		mslog.Panic(err)
	}

	p.AppendVarBytes(dataBytes)
}

// ReadData reads one data of any type from the beginning of unread payload
func (p *Packet) ReadData(msg interface{}) {
	b := p.ReadVarBytes()
	err := MSG_PACKER.UnpackMsg(b, msg)
	if err != nil {
		mslog.Panic(err)
	}
}
