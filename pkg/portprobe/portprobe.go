// Package portprobe discovers the local TCP ports a nominated process is
// currently listening on — the Inside endpoint's view of "which backend
// ports should be exposed."
package portprobe

import (
	"sort"
	"strings"

	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// PortFloor is the exclusive lower bound on ports the probe returns (spec
// requires "retain only ports in (100, 65535]").
const PortFloor = 100

// listener is the subset of a TCP connection record the filter cares about.
type listener struct {
	ip   string
	port int
	pid  int32
}

// Probe enumerates system TCP listeners, keeps only those owned by a
// process whose name contains processFilter, excludes loopback-bound
// entries and the tunnel's own bridge/sync ports, and returns the
// survivors as a set. On enumeration failure it returns an empty set
// alongside the error — the next sync then requests closure of all
// ports, and the caller is expected to log the failure.
func Probe(processFilter string, ownPorts ...int) (map[int]struct{}, error) {
	conns, err := gnet.Connections("tcp")
	if err != nil {
		return map[int]struct{}{}, err
	}

	listeners := make([]listener, 0, len(conns))
	for _, c := range conns {
		if c.Status != "LISTEN" {
			continue
		}
		listeners = append(listeners, listener{ip: c.Laddr.IP, port: int(c.Laddr.Port), pid: c.Pid})
	}

	return filter(listeners, processFilter, processName, ownPorts), nil
}

// filter applies the port-selection rules over a list of listening sockets.
// It is separated from Probe so the selection logic can be exercised without
// a real gopsutil/OS dependency.
func filter(listeners []listener, processFilter string, nameOf func(int32) string, ownPorts []int) map[int]struct{} {
	result := make(map[int]struct{})

	exclude := make(map[int]struct{}, len(ownPorts))
	for _, p := range ownPorts {
		exclude[p] = struct{}{}
	}

	nameCache := make(map[int32]string)

	for _, l := range listeners {
		if l.ip == "127.0.0.1" || l.ip == "::1" {
			continue
		}
		if l.port <= PortFloor || l.port > 65535 {
			continue
		}
		if _, skip := exclude[l.port]; skip {
			continue
		}

		name, ok := nameCache[l.pid]
		if !ok {
			name = nameOf(l.pid)
			nameCache[l.pid] = name
		}
		if !strings.Contains(name, processFilter) {
			continue
		}

		result[l.port] = struct{}{}
	}

	return result
}

func processName(pid int32) string {
	if pid <= 0 {
		return ""
	}
	proc, err := process.NewProcess(pid)
	if err != nil {
		return ""
	}
	name, err := proc.Name()
	if err != nil {
		return ""
	}
	return name
}

// Sorted returns the port set as a sorted slice, for deterministic wire
// encoding and logging.
func Sorted(ports map[int]struct{}) []int {
	out := make([]int, 0, len(ports))
	for p := range ports {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
