package wire

import (
	"bytes"
	"testing"

	"github.com/iprw/revtun/pkg/auth"
)

func TestSyncMessageRoundTrip(t *testing.T) {
	tok := auth.Derive("opensesame")
	ports := []int{80, 443, 9000}

	frame := EncodeSyncMessage(tok, ports)
	r := bytes.NewReader(frame)

	gotTok, err := ReadSyncToken(r)
	if err != nil {
		t.Fatalf("ReadSyncToken: %v", err)
	}
	if gotTok != tok {
		t.Fatal("token mismatch after round trip")
	}

	gotPorts, err := ReadSyncPorts(r)
	if err != nil {
		t.Fatalf("ReadSyncPorts: %v", err)
	}
	if len(gotPorts) != len(ports) {
		t.Fatalf("want %d ports, got %d", len(ports), len(gotPorts))
	}
	for i, p := range ports {
		if gotPorts[i] != p {
			t.Fatalf("port %d: want %d got %d", i, p, gotPorts[i])
		}
	}
}

func TestSyncMessageSameTwiceIdempotent(t *testing.T) {
	tok := auth.Derive("k")
	ports := []int{100, 200}
	f1 := EncodeSyncMessage(tok, ports)
	f2 := EncodeSyncMessage(tok, ports)
	if !bytes.Equal(f1, f2) {
		t.Fatal("encoding the same message twice produced different bytes")
	}
}

func TestReadSyncPortsRejectsOversizedCount(t *testing.T) {
	tok := auth.Derive("k")
	buf := bytes.NewBuffer(tok[:])
	buf.Write([]byte{0x03, 0xE9}) // 1001, big-endian

	r := bytes.NewReader(buf.Bytes()[auth.TokenSize:])
	if _, err := ReadSyncPorts(r); err == nil {
		t.Fatal("expected error for count > MaxSyncPorts")
	}
}

func TestReadSyncPortsDropsInvalidPorts(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x02}) // count = 2
	buf.Write([]byte{0x00, 0x00}) // port 0 — invalid
	buf.Write([]byte{0x1F, 0x90}) // port 8080 — valid

	ports, err := ReadSyncPorts(&buf)
	if err != nil {
		t.Fatalf("ReadSyncPorts: %v", err)
	}
	if len(ports) != 1 || ports[0] != 8080 {
		t.Fatalf("want [8080], got %v", ports)
	}
}

func TestDispatchHeaderRoundTrip(t *testing.T) {
	frame := EncodeDispatchHeader(9000)
	got, err := ReadDispatchHeader(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("ReadDispatchHeader: %v", err)
	}
	if got != 9000 {
		t.Fatalf("want 9000, got %d", got)
	}
}

func TestDispatchHeaderTruncated(t *testing.T) {
	if _, err := ReadDispatchHeader(bytes.NewReader([]byte{0x01})); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestValidPortBoundaries(t *testing.T) {
	cases := map[int]bool{0: false, 1: true, 65535: true, 65536: false, -1: false}
	for p, want := range cases {
		if got := ValidPort(p); got != want {
			t.Errorf("ValidPort(%d) = %v, want %v", p, got, want)
		}
	}
}
