package xlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/oakstress/internal/monitoring"
)

// DeviceInfo is one discovered device as reported by its discovery
// responder.
type DeviceInfo struct {
	Name     string `json:"name"` // IP address of the device
	MxID     string `json:"mxid"` // factory-programmed device identifier
	State    string `json:"state"`
	Protocol string `json:"protocol"`
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s (%s, %s, %s)", d.MxID, d.Name, d.State, d.Protocol)
}

// Addr returns the TCP address the device accepts sessions on.
func (d DeviceInfo) Addr() string {
	return net.JoinHostPort(d.Name, fmt.Sprintf("%d", DATA_PORT))
}

// Discover broadcasts a discovery request and collects responses until the
// timeout elapses or ctx is cancelled. Duplicate responses from the same
// device are collapsed.
func Discover(ctx context.Context, timeout time.Duration) ([]DeviceInfo, error) {
	pc, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("open discovery socket: %w", err)
	}
	defer pc.Close()

	bcast := &net.UDPAddr{IP: net.IPv4bcast, Port: DISCOVERY_PORT}
	if _, err := pc.WriteTo(discoveryMarker, bcast); err != nil {
		return nil, fmt.Errorf("send discovery broadcast: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	seen := make(map[string]bool)
	var devices []DeviceInfo
	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			break
		}
		if err := pc.SetReadDeadline(deadline); err != nil {
			return devices, err
		}
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return devices, err
		}

		var info DeviceInfo
		if err := json.Unmarshal(buf[:n], &info); err != nil {
			monitoring.Logf("Ignoring malformed discovery response from %s: %v", from, err)
			continue
		}
		if info.Name == "" {
			if host, _, err := net.SplitHostPort(from.String()); err == nil {
				info.Name = host
			}
		}
		if seen[info.MxID] {
			continue
		}
		seen[info.MxID] = true
		devices = append(devices, info)
	}
	return devices, nil
}

// FindDevice returns the device with the given id, or the first device
// found when mxid is empty.
func FindDevice(ctx context.Context, mxid string, timeout time.Duration) (DeviceInfo, error) {
	devices, err := Discover(ctx, timeout)
	if err != nil {
		return DeviceInfo{}, err
	}
	if len(devices) == 0 {
		return DeviceInfo{}, fmt.Errorf("no devices found")
	}
	if mxid == "" {
		return devices[0], nil
	}
	for _, d := range devices {
		if d.MxID == mxid {
			return d, nil
		}
	}
	return DeviceInfo{}, fmt.Errorf("device %s not found (%d other devices responded)", mxid, len(devices))
}

// ServeDiscovery answers discovery broadcasts on pc with info until ctx is
// cancelled. The device simulator and protocol tests run this on a
// loopback socket; real devices implement the same exchange in firmware.
func ServeDiscovery(ctx context.Context, pc net.PacketConn, info DeviceInfo) error {
	resp, err := json.Marshal(info)
	if err != nil {
		return err
	}

	buf := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := pc.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return err
		}
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if string(buf[:n]) != string(discoveryMarker) {
			continue
		}
		if _, err := pc.WriteTo(resp, from); err != nil {
			monitoring.Logf("Discovery response to %s failed: %v", from, err)
		}
	}
}
