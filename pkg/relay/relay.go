// Package relay copies bytes between two streams with idle-timeout
// enforcement and guaranteed close, the tunnel's splicer.
package relay

import (
	"context"
	"net"
	"time"
)

// Pipe copies data from src to dst until src returns EOF/error or a write to
// dst fails. Every read and every write is bounded by idleTimeout. On any
// exit path dst is closed, so a blocked peer on the other side of dst is
// unblocked. Returns the number of bytes successfully written to dst.
func Pipe(dst, src net.Conn, idleTimeout time.Duration) int64 {
	defer dst.Close()

	buf := make([]byte, BufferSize)
	var total int64
	for {
		src.SetReadDeadline(time.Now().Add(idleTimeout))
		n, rerr := src.Read(buf)
		if n > 0 {
			dst.SetWriteDeadline(time.Now().Add(idleTimeout))
			written, werr := dst.Write(buf[:n])
			if written > 0 {
				total += int64(written)
			}
			if werr != nil {
				return total
			}
		}
		if rerr != nil {
			return total
		}
	}
}

// Splice runs Pipe in both directions concurrently (a→b and b→a) and blocks
// until both finish. When one direction ends, Pipe closes that direction's
// destination connection entirely (Close, not CloseWrite), so the other
// direction's next read from that connection fails and it ends too; a
// half-closed stream is not kept open for the reverse direction. ctx
// cancellation force-closes both ends so
// neither direction can block forever past shutdown.
func Splice(ctx context.Context, a, b net.Conn, idleTimeout time.Duration) (aToB, bToA int64) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			a.Close()
			b.Close()
		case <-done:
		}
	}()

	results := make(chan struct{}, 2)
	go func() {
		aToB = Pipe(b, a, idleTimeout)
		results <- struct{}{}
	}()
	go func() {
		bToA = Pipe(a, b, idleTimeout)
		results <- struct{}{}
	}()
	<-results
	<-results
	return
}
