package xlink

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

func TestServeDiscoveryAnswersMarker(t *testing.T) {
	responder, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen responder: %v", err)
	}
	defer responder.Close()

	info := DeviceInfo{Name: "127.0.0.1", MxID: "14442C10D13EABCE00", State: "BOOTLOADER", Protocol: "tcpip"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ServeDiscovery(ctx, responder, info)

	client, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen client: %v", err)
	}
	defer client.Close()

	if _, err := client.WriteTo(discoveryMarker, responder.LocalAddr()); err != nil {
		t.Fatalf("send marker: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := client.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	var got DeviceInfo
	if err := json.Unmarshal(buf[:n], &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.MxID != info.MxID || got.State != info.State {
		t.Errorf("response = %+v, want %+v", got, info)
	}
}

func TestServeDiscoveryIgnoresOtherTraffic(t *testing.T) {
	responder, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen responder: %v", err)
	}
	defer responder.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ServeDiscovery(ctx, responder, DeviceInfo{MxID: "x"})

	client, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen client: %v", err)
	}
	defer client.Close()

	if _, err := client.WriteTo([]byte("not the marker"), responder.LocalAddr()); err != nil {
		t.Fatalf("send garbage: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 64)
	if _, _, err := client.ReadFrom(buf); err == nil {
		t.Error("responder answered a non-discovery datagram")
	}
}

func TestDeviceInfoAddr(t *testing.T) {
	info := DeviceInfo{Name: "192.168.1.44"}
	if got := info.Addr(); got != "192.168.1.44:11490" {
		t.Errorf("Addr() = %q, want 192.168.1.44:11490", got)
	}
}
