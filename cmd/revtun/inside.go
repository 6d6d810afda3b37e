package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/iprw/revtun/pkg/auth"
	"github.com/iprw/revtun/pkg/portprobe"
	"github.com/iprw/revtun/pkg/ratelog"
	"github.com/iprw/revtun/pkg/relay"
	"github.com/iprw/revtun/pkg/wire"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 10 * time.Second
)

// InsideRuntime is the pool-producer role: it keeps a steady pool of
// outbound bridge sessions open to the Outside endpoint and periodically
// reports the set of local backend ports.
type InsideRuntime struct {
	cfg   *Config
	token auth.Token
	stats *Stats
	rl    *ratelog.Limiter

	// sem bounds concurrent outbound bridge attempts at cfg.PoolSize. With
	// exactly cfg.PoolSize workers each holding one slot, this is redundant
	// under current parameters — kept explicit so the cap stays enforced if
	// the worker count and pool size are ever decoupled.
	sem chan struct{}
}

// NewInsideRuntime builds an Inside runtime from its configuration.
func NewInsideRuntime(cfg *Config) *InsideRuntime {
	return &InsideRuntime{
		cfg:   cfg,
		token: auth.Derive(cfg.Key),
		stats: NewStats(),
		rl:    ratelog.New(Log, 30*time.Second),
		sem:   make(chan struct{}, cfg.PoolSize),
	}
}

// Run starts the sync producer and the bridge-worker pool and blocks until
// ctx is cancelled.
func (r *InsideRuntime) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.syncProducerLoop(ctx)
	}()

	for i := 0; i < r.cfg.PoolSize; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.bridgeWorker(ctx, id)
		}(i)
	}

	if r.cfg.StatsInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.statsLoop(ctx)
		}()
	}

	Log.Infof("inside: %d bridge workers dialing %s:%d, sync every %v",
		r.cfg.PoolSize, r.cfg.OutsideAddr, r.cfg.BridgePort, r.cfg.SyncInterval)

	<-ctx.Done()
	wg.Wait()
	return nil
}

// statsLoop logs a condensed stats snapshot on cfg.StatsInterval until ctx
// is cancelled. The Inside endpoint has no BridgePool of its own, so pool
// occupancy is reported as 0 of the configured worker count.
func (r *InsideRuntime) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.stats.Snapshot(0, r.cfg.PoolSize).Log()
		case <-ctx.Done():
			return
		}
	}
}

// syncProducerLoop runs the sync producer: on a fixed cadence, dial the
// sync port fresh, write the auth token and current port set, and close.
func (r *InsideRuntime) syncProducerLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		r.runSyncOnce(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (r *InsideRuntime) runSyncOnce(ctx context.Context) {
	ports := r.cfg.ManualPorts
	if r.cfg.AutoSync {
		discovered, err := portprobe.Probe(r.cfg.ProcessFilter, r.cfg.BridgePort, r.cfg.SyncPort)
		if err != nil {
			r.rl.Errorf("probe-failed", "sync: port enumeration failed, reporting empty set: %v", err)
		}
		ports = portprobe.Sorted(discovered)
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.cfg.FrameTimeout)
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", r.cfg.OutsideAddr, r.cfg.SyncPort))
	cancel()
	if err != nil {
		r.rl.Warnf("sync-dial", "sync: failed to connect to %s:%d: %v", r.cfg.OutsideAddr, r.cfg.SyncPort, err)
		return
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(r.cfg.FrameTimeout))
	_, err = conn.Write(wire.EncodeSyncMessage(r.token, ports))
	conn.SetWriteDeadline(time.Time{})
	if err != nil {
		r.rl.Warnf("sync-write", "sync: failed to write sync message: %v", err)
		return
	}

	Log.Debugf("sync: reported %d ports", len(ports))
}

// bridgeWorker runs one copy of the producer state machine: Connecting →
// AwaitingServerAuth → AwaitingDispatch → ConnectingBackend → Splicing →
// back to Connecting, with exponential backoff on any failure and a
// permanent exit on server auth mismatch.
func (r *InsideRuntime) bridgeWorker(ctx context.Context, id int) {
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return
		case r.sem <- struct{}{}:
		}

		exitPermanently, err := r.bridgeCycle(ctx)
		<-r.sem

		if exitPermanently {
			r.stats.BridgeAuthFailure.Add(1)
			Log.Warnf("bridge worker %d: server auth mismatch, exiting permanently", id)
			return
		}

		if err != nil {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = initialBackoff
		r.stats.BridgeReconnects.Add(1)
	}
}

// bridgeCycle runs exactly one bridge session end-to-end: dial, verify
// server auth, read the dispatch header, connect the backend, splice. The
// first return value is true only on an unrecoverable auth mismatch, which
// terminates the calling worker; a non-nil error otherwise signals a normal
// failure that should be retried after backoff.
func (r *InsideRuntime) bridgeCycle(ctx context.Context) (exitPermanently bool, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, r.cfg.FrameTimeout)
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", r.cfg.OutsideAddr, r.cfg.BridgePort))
	cancel()
	if err != nil {
		r.rl.Warnf("bridge-dial", "bridge: failed to connect to %s:%d: %v", r.cfg.OutsideAddr, r.cfg.BridgePort, err)
		return false, err
	}
	defer conn.Close()
	if err := relay.TuneSocket(conn); err != nil {
		r.rl.Debugf("bridge-tune", "bridge: socket tuning failed on %s: %v", conn.RemoteAddr(), err)
	}

	var serverAuth auth.Token
	conn.SetReadDeadline(time.Now().Add(r.cfg.FrameTimeout))
	_, err = io.ReadFull(conn, serverAuth[:])
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		// A truncated read here is a normal condition: the Outside endpoint
		// drops over-capacity bridge sessions without writing a full token.
		r.stats.BridgeIncomplete.Add(1)
		r.rl.Debugf("bridge-incomplete-auth", "bridge: incomplete auth read: %v", err)
		return false, err
	}
	if !auth.Verify(serverAuth, r.token) {
		return true, nil
	}

	conn.SetReadDeadline(time.Now().Add(r.cfg.FrameTimeout))
	targetPort, err := wire.ReadDispatchHeader(conn)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		r.stats.BridgeIncomplete.Add(1)
		r.rl.Debugf("bridge-incomplete-dispatch", "bridge: incomplete dispatch read: %v", err)
		return false, err
	}
	if !wire.ValidPort(targetPort) {
		Log.Warnf("bridge: dispatch header named out-of-range port %d", targetPort)
		return false, nil
	}

	backendCtx, backendCancel := context.WithTimeout(ctx, r.cfg.FrameTimeout)
	var bd net.Dialer
	backend, err := bd.DialContext(backendCtx, "tcp", fmt.Sprintf("127.0.0.1:%d", targetPort))
	backendCancel()
	if err != nil {
		r.rl.Warnf("backend-dial", "bridge: failed to connect to backend port %d: %v", targetPort, err)
		return false, err
	}
	defer backend.Close()
	if err := relay.TuneSocket(backend); err != nil {
		r.rl.Debugf("backend-tune", "bridge: socket tuning failed on backend port %d: %v", targetPort, err)
	}

	r.stats.ConnStart()
	aToB, bToA := relay.Splice(ctx, conn, backend, relay.DefaultIdleTimeout)
	r.stats.ConnEnd()
	r.stats.TotalBytes.Add(uint64(aToB + bToA))

	return false, nil
}
