package relay

import "net"

// socketBufferSize is the send/receive buffer size applied to every tunnel
// socket via SO_SNDBUF/SO_RCVBUF.
const socketBufferSize = 2 * 1024 * 1024

// TuneSocket disables Nagle's algorithm and grows the socket's send/receive
// buffers on conn, if it is a *net.TCPConn. This is best-effort: all three
// options are attempted and the first failure is returned, to be logged at
// debug by the caller, never treated as fatal to the connection.
func TuneSocket(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	var firstErr error
	if err := tc.SetNoDelay(true); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := tc.SetReadBuffer(socketBufferSize); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := tc.SetWriteBuffer(socketBufferSize); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
