package device

import (
	"context"
	"sync/atomic"

	"github.com/banshee-data/oakstress/internal/monitoring"
	"github.com/banshee-data/oakstress/internal/oak/message"
)

// OutQueue is the host side of one device-to-host stream. Messages
// arriving while the queue is full are dropped by the mux and counted in
// its stats; decode failures are counted here and never fatal.
type OutQueue struct {
	name      string
	subID     string
	ch        chan []byte
	frames    atomic.Uint64
	decodeErr atomic.Uint64
}

// OutputQueue opens a device-to-host stream and returns its queue. size
// is the host-side buffer depth. The blocking flag mirrors the vendor
// queue API; host delivery always drops rather than stalls the link, so
// it only sizes the buffer (blocking queues get a deeper one).
func (d *Device) OutputQueue(name string, size int, blocking bool) (*OutQueue, error) {
	if blocking {
		size *= 2
	}
	if size < 1 {
		size = 1
	}
	if _, err := d.mux.OpenStream(name); err != nil {
		return nil, err
	}
	subID, ch := d.mux.Subscribe(name, size)
	return &OutQueue{name: name, subID: subID, ch: ch}, nil
}

// Name returns the stream name the queue drains.
func (q *OutQueue) Name() string { return q.name }

// TryGet returns the next message without blocking. The second return
// is false when the queue is empty. Undecodable packets are dropped and
// counted; TryGet moves on to the next packet.
func (q *OutQueue) TryGet() (message.Message, bool) {
	for {
		select {
		case payload, ok := <-q.ch:
			if !ok {
				return nil, false
			}
			msg, err := message.Unmarshal(payload)
			if err != nil {
				q.decodeErr.Add(1)
				monitoring.Logf("Dropping undecodable packet on %s: %v", q.name, err)
				continue
			}
			q.frames.Add(1)
			return msg, true
		default:
			return nil, false
		}
	}
}

// Get blocks until a message arrives, the stream closes or the context
// is cancelled.
func (q *OutQueue) Get(ctx context.Context) (message.Message, error) {
	for {
		select {
		case payload, ok := <-q.ch:
			if !ok {
				return nil, context.Canceled
			}
			msg, err := message.Unmarshal(payload)
			if err != nil {
				q.decodeErr.Add(1)
				monitoring.Logf("Dropping undecodable packet on %s: %v", q.name, err)
				continue
			}
			q.frames.Add(1)
			return msg, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Frames returns how many messages the queue has decoded.
func (q *OutQueue) Frames() uint64 { return q.frames.Load() }

// DecodeErrors returns how many packets failed to decode.
func (q *OutQueue) DecodeErrors() uint64 { return q.decodeErr.Load() }

// InQueue is the host side of one host-to-device stream.
type InQueue struct {
	name string
	d    *Device
}

// InputQueue opens a host-to-device stream for control messages.
func (d *Device) InputQueue(name string) (*InQueue, error) {
	if _, err := d.mux.OpenStream(name); err != nil {
		return nil, err
	}
	return &InQueue{name: name, d: d}, nil
}

// Name returns the stream name the queue feeds.
func (q *InQueue) Name() string { return q.name }

// Send frames a message and writes it to the device.
func (q *InQueue) Send(m message.Message) error {
	packet, err := message.Marshal(m)
	if err != nil {
		return err
	}
	return q.d.mux.Send(q.name, packet)
}
