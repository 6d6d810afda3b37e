package main

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats tracks the counters operators care about for this tunnel: pool
// pressure, dispatch activity, sync churn, and auth failures.
type Stats struct {
	startTime time.Time

	// Bridge pool (Outside only)
	PoolEnqueued atomic.Uint64 // bridge sessions successfully queued
	PoolDropped  atomic.Uint64 // bridge sessions dropped, pool full for PoolPutTimeout
	PoolHits     atomic.Uint64 // user connections that got a session immediately or after waiting
	PoolTimeouts atomic.Uint64 // user connections that gave up after PoolGetTimeout

	// Dispatch / relay
	DispatchCount atomic.Uint64 // user connections successfully dispatched to a bridge session
	TotalBytes    atomic.Uint64
	ActiveConns   atomic.Int64
	TotalConns    atomic.Uint64

	// Sync
	SyncApplied  atomic.Uint64 // sync messages fully reconciled into ActivePortMap
	SyncRejected atomic.Uint64 // sync messages rejected (bad auth, count > MaxSyncPorts, truncated)

	// Auth
	AuthFailures atomic.Uint64 // sync connections closed for AuthToken mismatch (Outside only)

	// Bridge producer (Inside only)
	BridgeReconnects  atomic.Uint64 // bridge cycles that ended without error; the worker reconnects with backoff reset
	BridgeIncomplete  atomic.Uint64 // truncated reads on the bridge connection, a normal retryable condition
	BridgeAuthFailure atomic.Uint64 // permanent worker exits on server auth mismatch
}

// NewStats creates a fresh stats tracker.
func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

// ConnStart records the start of a relayed connection.
func (s *Stats) ConnStart() {
	s.TotalConns.Add(1)
	s.ActiveConns.Add(1)
}

// ConnEnd records the end of a relayed connection.
func (s *Stats) ConnEnd() {
	s.ActiveConns.Add(-1)
}

// Snapshot is a point-in-time rendering of Stats for logging.
type Snapshot struct {
	Uptime            time.Duration
	PoolAvailable     int
	PoolCapacity      int
	PoolEnqueued      uint64
	PoolDropped       uint64
	PoolHits          uint64
	PoolTimeouts      uint64
	DispatchCount     uint64
	TotalBytes        uint64
	ActiveConns       int64
	TotalConns        uint64
	SyncApplied       uint64
	SyncRejected      uint64
	AuthFailures      uint64
	BridgeReconnects  uint64
	BridgeIncomplete  uint64
	BridgeAuthFailure uint64
}

// Snapshot renders the current counters along with externally-tracked pool
// occupancy (the BridgePool itself owns that number).
func (s *Stats) Snapshot(poolAvailable, poolCapacity int) Snapshot {
	return Snapshot{
		Uptime:            time.Since(s.startTime),
		PoolAvailable:     poolAvailable,
		PoolCapacity:      poolCapacity,
		PoolEnqueued:      s.PoolEnqueued.Load(),
		PoolDropped:       s.PoolDropped.Load(),
		PoolHits:          s.PoolHits.Load(),
		PoolTimeouts:      s.PoolTimeouts.Load(),
		DispatchCount:     s.DispatchCount.Load(),
		TotalBytes:        s.TotalBytes.Load(),
		ActiveConns:       s.ActiveConns.Load(),
		TotalConns:        s.TotalConns.Load(),
		SyncApplied:       s.SyncApplied.Load(),
		SyncRejected:      s.SyncRejected.Load(),
		AuthFailures:      s.AuthFailures.Load(),
		BridgeReconnects:  s.BridgeReconnects.Load(),
		BridgeIncomplete:  s.BridgeIncomplete.Load(),
		BridgeAuthFailure: s.BridgeAuthFailure.Load(),
	}
}

func (snap Snapshot) String() string {
	return fmt.Sprintf(
		"uptime=%v pool=%d/%d enq=%d drop=%d hit=%d timeout=%d dispatch=%d active=%d total=%d bytes=%d sync_ok=%d sync_rej=%d auth_fail=%d bridge_reconnect=%d bridge_incomplete=%d bridge_auth_fail=%d",
		snap.Uptime.Round(time.Second), snap.PoolAvailable, snap.PoolCapacity,
		snap.PoolEnqueued, snap.PoolDropped, snap.PoolHits, snap.PoolTimeouts,
		snap.DispatchCount, snap.ActiveConns, snap.TotalConns, snap.TotalBytes,
		snap.SyncApplied, snap.SyncRejected, snap.AuthFailures,
		snap.BridgeReconnects, snap.BridgeIncomplete, snap.BridgeAuthFailure,
	)
}

// Log writes a condensed stats line at info level.
func (snap Snapshot) Log() {
	Log.Infof("[STATS] %s", snap)
}
