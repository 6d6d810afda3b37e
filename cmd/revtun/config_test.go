package main

import (
	"os"
	"testing"
)

func clearTunnelEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MODE", "KEY", "BRIDGE_PORT", "SYNC_PORT", "IRAN_IP",
		"AUTO_SYNC", "MANUAL_PORTS", "PROCESS_FILTER", "SYNC_INTERVAL",
		"POOL_SIZE", "STATS_INTERVAL",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadConfigInsideHappyPath(t *testing.T) {
	clearTunnelEnv(t)
	t.Setenv("MODE", "iran")
	t.Setenv("KEY", "opensesame")
	t.Setenv("BRIDGE_PORT", "4430")
	t.Setenv("SYNC_PORT", "4431")
	t.Setenv("IRAN_IP", "203.0.113.5")
	t.Setenv("AUTO_SYNC", "y")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Role != RoleInside {
		t.Fatalf("want RoleInside, got %v", cfg.Role)
	}
	if !cfg.AutoSync {
		t.Fatal("want AutoSync true")
	}
	if cfg.BridgePort != 4430 || cfg.SyncPort != 4431 {
		t.Fatalf("unexpected ports: %+v", cfg)
	}
}

func TestLoadConfigOutsideDoesNotRequireIranIP(t *testing.T) {
	clearTunnelEnv(t)
	t.Setenv("MODE", "europe")
	t.Setenv("KEY", "opensesame")
	t.Setenv("BRIDGE_PORT", "4430")
	t.Setenv("SYNC_PORT", "4431")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Role != RoleOutside {
		t.Fatalf("want RoleOutside, got %v", cfg.Role)
	}
}

func TestLoadConfigRejectsShortKey(t *testing.T) {
	clearTunnelEnv(t)
	t.Setenv("MODE", "europe")
	t.Setenv("KEY", "short")
	t.Setenv("BRIDGE_PORT", "4430")
	t.Setenv("SYNC_PORT", "4431")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for short KEY")
	}
}

func TestLoadConfigRejectsSamePorts(t *testing.T) {
	clearTunnelEnv(t)
	t.Setenv("MODE", "europe")
	t.Setenv("KEY", "opensesame")
	t.Setenv("BRIDGE_PORT", "4430")
	t.Setenv("SYNC_PORT", "4430")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for BRIDGE_PORT == SYNC_PORT")
	}
}

func TestLoadConfigManualPortsRequiredWhenAutoSyncOff(t *testing.T) {
	clearTunnelEnv(t)
	t.Setenv("MODE", "iran")
	t.Setenv("KEY", "opensesame")
	t.Setenv("BRIDGE_PORT", "4430")
	t.Setenv("SYNC_PORT", "4431")
	t.Setenv("IRAN_IP", "203.0.113.5")
	t.Setenv("AUTO_SYNC", "n")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when AUTO_SYNC=n and MANUAL_PORTS unset")
	}
}

func TestLoadConfigRejectsInvalidMode(t *testing.T) {
	clearTunnelEnv(t)
	t.Setenv("MODE", "mars")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for invalid MODE")
	}
}

func TestParseManualPortsDropsInvalid(t *testing.T) {
	got := parseManualPorts("80,443,notaport,99999,9000")
	want := []int{80, 443, 9000}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
