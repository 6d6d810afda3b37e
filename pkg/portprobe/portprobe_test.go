package portprobe

import "testing"

func fakeNames(names map[int32]string) func(int32) string {
	return func(pid int32) string { return names[pid] }
}

func TestFilterExcludesLoopback(t *testing.T) {
	listeners := []listener{
		{ip: "127.0.0.1", port: 9000, pid: 1},
		{ip: "0.0.0.0", port: 9001, pid: 1},
		{ip: "::1", port: 9002, pid: 1},
	}
	names := fakeNames(map[int32]string{1: "xray-linux-amd64"})

	got := filter(listeners, "xray", names, nil)
	if _, ok := got[9001]; !ok || len(got) != 1 {
		t.Fatalf("want only 9001, got %v", got)
	}
}

func TestFilterExcludesOwnPorts(t *testing.T) {
	listeners := []listener{
		{ip: "0.0.0.0", port: 4430, pid: 1}, // bridge port
		{ip: "0.0.0.0", port: 4431, pid: 1}, // sync port
		{ip: "0.0.0.0", port: 9000, pid: 1},
	}
	names := fakeNames(map[int32]string{1: "xray"})

	got := filter(listeners, "xray", names, []int{4430, 4431})
	if len(got) != 1 {
		t.Fatalf("want 1 port, got %v", got)
	}
	if _, ok := got[9000]; !ok {
		t.Fatalf("want 9000 present, got %v", got)
	}
}

func TestFilterPortFloor(t *testing.T) {
	listeners := []listener{
		{ip: "0.0.0.0", port: 80, pid: 1},  // <= 100, excluded
		{ip: "0.0.0.0", port: 100, pid: 1}, // boundary, excluded (must be > 100)
		{ip: "0.0.0.0", port: 101, pid: 1}, // included
	}
	names := fakeNames(map[int32]string{1: "xray"})

	got := filter(listeners, "xray", names, nil)
	if len(got) != 1 {
		t.Fatalf("want 1 port, got %v", got)
	}
	if _, ok := got[101]; !ok {
		t.Fatalf("want 101 present, got %v", got)
	}
}

func TestFilterByProcessName(t *testing.T) {
	listeners := []listener{
		{ip: "0.0.0.0", port: 9000, pid: 1},
		{ip: "0.0.0.0", port: 9001, pid: 2},
	}
	names := fakeNames(map[int32]string{1: "xray-linux-amd64", 2: "nginx"})

	got := filter(listeners, "xray", names, nil)
	if len(got) != 1 {
		t.Fatalf("want 1 port, got %v", got)
	}
	if _, ok := got[9000]; !ok {
		t.Fatalf("want 9000 present, got %v", got)
	}
}

func TestSortedIsStableAndSorted(t *testing.T) {
	ports := map[int]struct{}{9001: {}, 80 + 1000: {}, 443: {}}
	got := Sorted(ports)
	for i := 1; i < len(got); i++ {
		if got[i-1] > got[i] {
			t.Fatalf("not sorted: %v", got)
		}
	}
}
