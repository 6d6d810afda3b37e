package main

import (
	"context"
	"fmt"
	"net"
)

// BridgePool is the Outside endpoint's bounded FIFO of idle bridge
// sessions. Sessions arrive from the bridge acceptor rather than being
// dialed by the pool itself; the pool is purely a timed hand-off queue
// between the acceptor goroutine and the user-connection handler
// goroutines. A buffered channel gives bounded capacity and safe
// concurrent producers/consumers for free.
type BridgePool struct {
	sessions chan net.Conn
	stats    *Stats
}

// NewBridgePool creates a pool with the given capacity (MAX_POOL).
func NewBridgePool(capacity int, stats *Stats) *BridgePool {
	return &BridgePool{
		sessions: make(chan net.Conn, capacity),
		stats:    stats,
	}
}

// Put enqueues an Idle bridge session, blocking up to ctx's deadline. On a
// full queue that stays full for the deadline, it returns an error and the
// caller is expected to close the session itself — Put never closes conn.
func (p *BridgePool) Put(ctx context.Context, conn net.Conn) error {
	select {
	case p.sessions <- conn:
		p.stats.PoolEnqueued.Add(1)
		return nil
	case <-ctx.Done():
		p.stats.PoolDropped.Add(1)
		return fmt.Errorf("bridge pool: put timed out, pool full: %w", ctx.Err())
	}
}

// Get dequeues an idle bridge session, blocking up to ctx's deadline. Once
// dequeued a session is never returned to the pool: callers own it
// exclusively from this point on, win or lose.
func (p *BridgePool) Get(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-p.sessions:
		p.stats.PoolHits.Add(1)
		return conn, nil
	case <-ctx.Done():
		p.stats.PoolTimeouts.Add(1)
		return nil, fmt.Errorf("bridge pool: get timed out, no session available: %w", ctx.Err())
	}
}

// Stats reports current occupancy and capacity for logging.
func (p *BridgePool) Stats() (available, capacity int) {
	return len(p.sessions), cap(p.sessions)
}

// Drain closes every session still sitting in the pool. Called on shutdown
// after the acceptor and user listeners have stopped feeding/draining it.
func (p *BridgePool) Drain() {
	for {
		select {
		case conn := <-p.sessions:
			conn.Close()
		default:
			return
		}
	}
}
