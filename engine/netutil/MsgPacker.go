package netutil

import (
	"bytes"

	"github.com/vmihailenco/msgpack"
)

// MsgPacker serializes structured values (progress maps, load info) into
// packet payloads
type MsgPacker interface {
	PackMsg(msg interface{}, buf []byte) ([]byte, error)
	UnpackMsg(data []byte, msg interface{}) error
}

// MSG_PACKER is the packer used by Packet.AppendData and Packet.ReadData
var MSG_PACKER MsgPacker = msgpackMsgPacker{}

// msgpackMsgPacker implements MsgPacker on the MessagePack wire format
type msgpackMsgPacker struct{}

func (mp msgpackMsgPacker) PackMsg(msg interface{}, buf []byte) ([]byte, error) {
	buffer := bytes.NewBuffer(buf)
	if err := msgpack.NewEncoder(buffer).Encode(msg); err != nil {
		return buf, err
	}
	return buffer.Bytes(), nil
}

func (mp msgpackMsgPacker) UnpackMsg(data []byte, msg interface{}) error {
	return msgpack.Unmarshal(data, msg)
}
