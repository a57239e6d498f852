package netutil

import (
	"net"

	"github.com/xiaonanln/netconnutil"
)

// Connection is the network connection type used by PacketConnection: a
// net.Conn that can also be flushed after a batch of writes
type Connection interface {
	netconnutil.FlushableConn
}

// NetConn wraps a net.Conn as a Connection with no-op Flush
type NetConn struct {
	net.Conn
}

// Flush flushes the connection
func (n NetConn) Flush() error {
	return nil
}
