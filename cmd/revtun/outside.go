package main

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/iprw/revtun/pkg/auth"
	"github.com/iprw/revtun/pkg/ratelog"
	"github.com/iprw/revtun/pkg/relay"
	"github.com/iprw/revtun/pkg/wire"
)

// OutsideRuntime is the pool-consumer role: it terminates bridge and sync
// connections dialed in by the Inside endpoint and serves end-users on
// whatever public ports the sync channel asks for.
type OutsideRuntime struct {
	cfg   *Config
	token auth.Token
	stats *Stats
	pool  *BridgePool
	ports *ActivePortMap
	rl    *ratelog.Limiter
}

// NewOutsideRuntime builds an Outside runtime from its configuration.
func NewOutsideRuntime(cfg *Config) *OutsideRuntime {
	stats := NewStats()
	return &OutsideRuntime{
		cfg:   cfg,
		token: auth.Derive(cfg.Key),
		stats: stats,
		pool:  NewBridgePool(cfg.PoolSize, stats),
		ports: NewActivePortMap(),
		rl:    ratelog.New(Log, 30*time.Second),
	}
}

// Run binds the bridge and sync listeners and serves until ctx is cancelled.
func (o *OutsideRuntime) Run(ctx context.Context) error {
	bridgeListener, err := net.Listen("tcp", fmt.Sprintf(":%d", o.cfg.BridgePort))
	if err != nil {
		return fmt.Errorf("outside: listen bridge port %d: %w", o.cfg.BridgePort, err)
	}
	syncListener, err := net.Listen("tcp", fmt.Sprintf(":%d", o.cfg.SyncPort))
	if err != nil {
		bridgeListener.Close()
		return fmt.Errorf("outside: listen sync port %d: %w", o.cfg.SyncPort, err)
	}

	Log.Infof("outside: bridge listening on :%d, sync listening on :%d", o.cfg.BridgePort, o.cfg.SyncPort)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.acceptBridges(ctx, bridgeListener)
	}()
	go func() {
		defer wg.Done()
		o.acceptSyncs(ctx, syncListener)
	}()

	if o.cfg.StatsInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.statsLoop(ctx)
		}()
	}

	<-ctx.Done()
	bridgeListener.Close()
	syncListener.Close()
	o.ports.CloseAll()
	o.pool.Drain()
	wg.Wait()
	return nil
}

// statsLoop logs a condensed stats snapshot on cfg.StatsInterval until ctx
// is cancelled.
func (o *OutsideRuntime) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			avail, capacity := o.pool.Stats()
			o.stats.Snapshot(avail, capacity).Log()
		case <-ctx.Done():
			return
		}
	}
}

func (o *OutsideRuntime) acceptBridges(ctx context.Context, l net.Listener) {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				Log.Warnf("bridge listener: accept error: %v", err)
			}
			return
		}
		go o.handleBridgeConn(ctx, conn)
	}
}

// handleBridgeConn runs the bridge acceptor's per-connection steps: tune
// socket, write the auth token, enqueue into BridgePool with a timed put.
func (o *OutsideRuntime) handleBridgeConn(ctx context.Context, conn net.Conn) {
	if err := relay.TuneSocket(conn); err != nil {
		o.rl.Debugf("bridge-tune", "bridge: socket tuning failed on %s: %v", conn.RemoteAddr(), err)
	}

	conn.SetWriteDeadline(time.Now().Add(o.cfg.FrameTimeout))
	_, err := conn.Write(o.token[:])
	conn.SetWriteDeadline(time.Time{})
	if err != nil {
		o.rl.Debugf("bridge-auth-write", "bridge: failed to write auth token to %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	putCtx, cancel := context.WithTimeout(ctx, o.cfg.PoolPutTimeout)
	defer cancel()
	if err := o.pool.Put(putCtx, conn); err != nil {
		o.rl.Debugf("pool-full", "bridge pool full, dropping session from %s: %v", conn.RemoteAddr(), err)
		conn.Close()
	}
}

func (o *OutsideRuntime) acceptSyncs(ctx context.Context, l net.Listener) {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				Log.Warnf("sync listener: accept error: %v", err)
			}
			return
		}
		go o.handleSyncConn(ctx, conn)
	}
}

// handleSyncConn is the sync-consumer handler: a single deadline covers
// the whole frame, and a rejected message never partially reconciles
// ActivePortMap.
func (o *OutsideRuntime) handleSyncConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(o.cfg.FrameTimeout))

	got, err := wire.ReadSyncToken(conn)
	if err != nil {
		o.rl.Debugf("sync-read", "sync: failed to read auth token from %s: %v", conn.RemoteAddr(), err)
		return
	}
	if !auth.Verify(got, o.token) {
		o.stats.AuthFailures.Add(1)
		o.stats.SyncRejected.Add(1)
		Log.Warnf("sync: auth mismatch from %s", conn.RemoteAddr())
		return
	}

	ports, err := wire.ReadSyncPorts(conn)
	if err != nil {
		o.stats.SyncRejected.Add(1)
		Log.Warnf("sync: %v", err)
		return
	}

	newPorts := make(map[int]struct{}, len(ports))
	for _, p := range ports {
		newPorts[p] = struct{}{}
	}

	o.ports.Reconcile(ctx, newPorts, o.openUserListener, o.serveUserListener)
	o.stats.SyncApplied.Add(1)
	Log.Debugf("sync: applied, %d active ports", len(newPorts))
}

func (o *OutsideRuntime) openUserListener(port int) (net.Listener, error) {
	return net.Listen("tcp", fmt.Sprintf(":%d", port))
}

// serveUserListener runs the accept loop for one public port until portCtx
// is cancelled by ActivePortMap.Reconcile withdrawing it.
func (o *OutsideRuntime) serveUserListener(portCtx context.Context, port int, l net.Listener) {
	go func() {
		<-portCtx.Done()
		l.Close()
	}()
	Log.Infof("outside: public port %d open", port)
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-portCtx.Done():
			default:
				Log.Debugf("public port %d: accept error: %v", port, err)
			}
			return
		}
		go o.handleUserConn(portCtx, port, conn)
	}
}

// handleUserConn dequeues one bridge session, dispatches it to this port,
// splices, and never returns the session to the pool.
func (o *OutsideRuntime) handleUserConn(ctx context.Context, port int, conn net.Conn) {
	o.stats.ConnStart()
	defer o.stats.ConnEnd()
	defer conn.Close()

	getCtx, cancel := context.WithTimeout(ctx, o.cfg.PoolGetTimeout)
	defer cancel()
	bridge, err := o.pool.Get(getCtx)
	if err != nil {
		o.rl.Debugf("no-bridge", "public port %d: no bridge session available: %v", port, err)
		return
	}

	bridge.SetWriteDeadline(time.Now().Add(o.cfg.FrameTimeout))
	_, err = bridge.Write(wire.EncodeDispatchHeader(port))
	bridge.SetWriteDeadline(time.Time{})
	if err != nil {
		o.rl.Debugf("dispatch-write", "public port %d: failed to write dispatch header: %v", port, err)
		bridge.Close()
		return
	}

	o.stats.DispatchCount.Add(1)
	aToB, bToA := relay.Splice(ctx, conn, bridge, relay.DefaultIdleTimeout)
	o.stats.TotalBytes.Add(uint64(aToB + bToA))
}
