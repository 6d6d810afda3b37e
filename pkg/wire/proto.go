// Package wire encodes and decodes the tunnel's two on-the-wire frames: the
// port-sync message (Inside → Outside) and the dispatch header
// (Outside → Inside).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/iprw/revtun/pkg/auth"
)

// MaxSyncPorts is the defense-in-depth ceiling on the port count field of a
// sync message. A count above this is a protocol violation.
const MaxSyncPorts = 1000

// MinPort and MaxPort bound a valid PortNumber.
const (
	MinPort = 1
	MaxPort = 65535
)

// ValidPort reports whether p is a usable PortNumber ([1, 65535]).
func ValidPort(p int) bool {
	return p >= MinPort && p <= MaxPort
}

// EncodeSyncMessage builds the full [AuthToken][count][ports...] frame for
// the given port set. ports beyond MaxSyncPorts are silently truncated —
// callers are expected to keep backend port sets well under that ceiling.
func EncodeSyncMessage(token auth.Token, ports []int) []byte {
	if len(ports) > MaxSyncPorts {
		ports = ports[:MaxSyncPorts]
	}
	buf := make([]byte, auth.TokenSize+2+2*len(ports))
	copy(buf, token[:])
	binary.BigEndian.PutUint16(buf[auth.TokenSize:], uint16(len(ports)))
	off := auth.TokenSize + 2
	for _, p := range ports {
		binary.BigEndian.PutUint16(buf[off:], uint16(p))
		off += 2
	}
	return buf
}

// ReadSyncToken reads exactly the 32-byte AuthToken prefix of a sync message.
func ReadSyncToken(r io.Reader) (auth.Token, error) {
	var tok auth.Token
	_, err := io.ReadFull(r, tok[:])
	return tok, err
}

// ReadSyncPorts reads the count-prefixed port list that follows the
// AuthToken. It returns an error if the declared count exceeds
// MaxSyncPorts (the "defense against runaway input" check); invalid port
// numbers within range are silently dropped, not treated as errors.
func ReadSyncPorts(r io.Reader) ([]int, error) {
	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	count := int(binary.BigEndian.Uint16(countBuf[:]))
	if count > MaxSyncPorts {
		return nil, fmt.Errorf("wire: sync port count %d exceeds max %d", count, MaxSyncPorts)
	}

	ports := make([]int, 0, count)
	var portBuf [2]byte
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, portBuf[:]); err != nil {
			return nil, err
		}
		p := int(binary.BigEndian.Uint16(portBuf[:]))
		if ValidPort(p) {
			ports = append(ports, p)
		}
	}
	return ports, nil
}

// EncodeDispatchHeader builds the 2-byte big-endian target-port header sent
// on a freshly-dequeued bridge session.
func EncodeDispatchHeader(port int) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(port))
	return buf
}

// ReadDispatchHeader reads the 2-byte target-port header. The caller must
// separately validate the result with ValidPort before dialing it — a
// truncated read surfaces as the underlying io error (typically
// io.ErrUnexpectedEOF), which callers should treat as a normal, not
// exceptional, reconnect trigger.
func ReadDispatchHeader(r io.Reader) (int, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint16(buf[:])), nil
}
