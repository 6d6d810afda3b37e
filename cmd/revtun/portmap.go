package main

import (
	"context"
	"net"
	"sync"
)

// portEntry is one ActivePortMap row: the listening socket plus the cancel
// function for its serve goroutine.
type portEntry struct {
	listener net.Listener
	cancel   context.CancelFunc
}

// ActivePortMap is the Outside endpoint's authoritative set of public user
// ports. It is mutated only by the sync-consumer handler; a mutex
// serializes concurrent sync handlers rather than relying on any ordering
// guarantee from the caller.
type ActivePortMap struct {
	mu      sync.Mutex
	entries map[int]*portEntry
}

// NewActivePortMap creates an empty map.
func NewActivePortMap() *ActivePortMap {
	return &ActivePortMap{entries: make(map[int]*portEntry)}
}

// Ports returns the currently active port numbers.
func (m *ActivePortMap) Ports() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ports := make([]int, 0, len(m.entries))
	for p := range m.entries {
		ports = append(ports, p)
	}
	return ports
}

// Reconcile applies a full-replacement sync message: for every port in
// newPorts not currently active, it calls open to create a listener and
// starts it under serve; for every currently active port not in newPorts,
// it cancels that port's serve context and closes its listener. The whole
// operation runs under one lock, so it is atomic from an external
// observer's standpoint: new ports come up before withdrawn ports go down,
// within the same call.
func (m *ActivePortMap) Reconcile(
	ctx context.Context,
	newPorts map[int]struct{},
	open func(port int) (net.Listener, error),
	serve func(ctx context.Context, port int, l net.Listener),
) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for p := range newPorts {
		if _, exists := m.entries[p]; exists {
			continue
		}
		l, err := open(p)
		if err != nil {
			Log.Warnf("portmap: failed to open port %d: %v", p, err)
			continue
		}
		portCtx, cancel := context.WithCancel(ctx)
		m.entries[p] = &portEntry{listener: l, cancel: cancel}
		go serve(portCtx, p, l)
	}

	for p, entry := range m.entries {
		if _, keep := newPorts[p]; keep {
			continue
		}
		entry.cancel()
		entry.listener.Close()
		delete(m.entries, p)
	}
}

// CloseAll tears down every active listener, for shutdown.
func (m *ActivePortMap) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p, entry := range m.entries {
		entry.cancel()
		entry.listener.Close()
		delete(m.entries, p)
	}
}
