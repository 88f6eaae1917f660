package actuator

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeDevice runs a one-shot TCP listener that records the single line
// written to it and replies with a fixed string.
func fakeDevice(t *testing.T, reply string) (Endpoint, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start fake device listener: %v", err)
	}
	received := make(chan string, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
		conn.Write([]byte(reply))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	t.Cleanup(func() { ln.Close() })
	return Endpoint{DeviceID: "pump-1", Address: "127.0.0.1", Port: addr.Port}, received
}

func TestActivateSendsExpectedCommand(t *testing.T) {
	ep, received := fakeDevice(t, "ok")
	d := NewDevice(ep)

	reply, err := d.Activate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "ok" {
		t.Fatalf("expected reply %q, got %q", "ok", reply)
	}

	select {
	case cmd := <-received:
		if !containsAll(cmd, "softon") {
			t.Fatalf("expected activation command to contain softon, got %q", cmd)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for fake device to receive a command")
	}
}

func TestDeactivateSendsExpectedCommand(t *testing.T) {
	ep, received := fakeDevice(t, "ok")
	d := NewDevice(ep)

	if _, err := d.Deactivate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case cmd := <-received:
		if !containsAll(cmd, "softoff") {
			t.Fatalf("expected deactivation command to contain softoff, got %q", cmd)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for fake device to receive a command")
	}
}

func TestSetPowerLevelEncodesTier(t *testing.T) {
	ep, received := fakeDevice(t, "ok")
	d := NewDevice(ep)

	if _, err := d.SetPowerLevel(context.Background(), PowerLevelHigh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case cmd := <-received:
		if !containsAll(cmd, "workmode", "2") {
			t.Fatalf("expected workmode command encoding tier 2, got %q", cmd)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for fake device to receive a command")
	}
}

func TestActivateFailsWhenDeviceUnreachable(t *testing.T) {
	d := NewDevice(Endpoint{DeviceID: "unreachable", Address: "127.0.0.1", Port: 1})
	if _, err := d.Activate(context.Background()); err == nil {
		t.Fatalf("expected an error dialing an unreachable endpoint")
	}
}

func TestStatusDecodesJSONResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start fake device listener: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		discardRequest(conn)
		json.NewEncoder(conn).Encode(map[string]string{"state": "running"})
	}()

	addr := ln.Addr().(*net.TCPAddr)
	d := NewDevice(Endpoint{DeviceID: "pump-1", Address: "127.0.0.1", Port: addr.Port})

	var out map[string]string
	if err := d.Status(context.Background(), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["state"] != "running" {
		t.Fatalf("expected state running, got %+v", out)
	}
}

func discardRequest(conn net.Conn) {
	buf := make([]byte, 256)
	conn.Read(buf)
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
