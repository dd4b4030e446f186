package xlink

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/oakstress/internal/monitoring"
)

var ErrStreamNotOpen = fmt.Errorf("stream not open")

// StreamMux multiplexes named device streams over one framed connection.
// Multiple clients subscribe to inbound messages per stream; writes from
// any goroutine are serialized onto the link. A single Monitor goroutine
// owns the read side and fans frames out to subscribers.
type StreamMux struct {
	conn FrameConn

	subscriberMu sync.Mutex
	subscribers  map[string]map[string]chan []byte // stream name -> subscriber id -> channel
	tails        map[string]chan string

	streamMu sync.Mutex
	names    map[uint32]string
	ids      map[string]uint32
	nextID   uint32

	statsMu   sync.Mutex
	delivered map[string]uint64
	dropped   map[string]uint64

	closing   bool
	closingMu sync.Mutex
}

// NewStreamMux creates a mux over an established connection.
func NewStreamMux(conn FrameConn) *StreamMux {
	return &StreamMux{
		conn:        conn,
		subscribers: make(map[string]map[string]chan []byte),
		tails:       make(map[string]chan string),
		names:       make(map[uint32]string),
		ids:         make(map[string]uint32),
		delivered:   make(map[string]uint64),
		dropped:     make(map[string]uint64),
	}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// OpenStream announces a named stream to the device and returns its id.
// Opening an already-open stream returns the existing id.
func (m *StreamMux) OpenStream(name string) (uint32, error) {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()
	if id, ok := m.ids[name]; ok {
		return id, nil
	}
	m.nextID++
	id := m.nextID
	if err := m.conn.WriteFrame(Frame{Event: EVENT_OPEN_STREAM, StreamID: id, Payload: []byte(name)}); err != nil {
		return 0, fmt.Errorf("open stream %q: %w", name, err)
	}
	m.ids[name] = id
	m.names[id] = name
	return id, nil
}

// CloseStream tells the device to stop producing on a stream and forgets
// its id.
func (m *StreamMux) CloseStream(name string) error {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()
	id, ok := m.ids[name]
	if !ok {
		return ErrStreamNotOpen
	}
	delete(m.ids, name)
	delete(m.names, id)
	return m.conn.WriteFrame(Frame{Event: EVENT_CLOSE_STREAM, StreamID: id})
}

// StreamNames returns the open stream names, sorted.
func (m *StreamMux) StreamNames() []string {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()
	names := make([]string, 0, len(m.ids))
	for name := range m.ids {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subscribe creates a channel receiving inbound messages for one stream.
// The buffer size is the subscriber's queue depth: when the channel is
// full new messages are dropped for that subscriber and counted.
func (m *StreamMux) Subscribe(stream string, buffer int) (string, chan []byte) {
	id := randomID()
	ch := make(chan []byte, buffer)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if m.subscribers[stream] == nil {
		m.subscribers[stream] = make(map[string]chan []byte)
	}
	m.subscribers[stream][id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *StreamMux) Unsubscribe(stream, id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if subs, ok := m.subscribers[stream]; ok {
		if ch, ok := subs[id]; ok {
			close(ch)
			delete(subs, id)
		}
		if len(subs) == 0 {
			delete(m.subscribers, stream)
		}
	}
}

// SubscribeTail creates a channel receiving a one-line summary of every
// inbound frame, for the admin tail endpoint.
func (m *StreamMux) SubscribeTail() (string, chan string) {
	id := randomID()
	ch := make(chan string, 64)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.tails[id] = ch
	return id, ch
}

// UnsubscribeTail removes a tail subscriber and closes its channel.
func (m *StreamMux) UnsubscribeTail(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.tails[id]; ok {
		close(ch)
		delete(m.tails, id)
	}
}

// Send writes one message to an open stream.
func (m *StreamMux) Send(stream string, payload []byte) error {
	m.streamMu.Lock()
	id, ok := m.ids[stream]
	m.streamMu.Unlock()
	if !ok {
		return fmt.Errorf("send on %q: %w", stream, ErrStreamNotOpen)
	}
	return m.conn.WriteFrame(Frame{Event: EVENT_WRITE, StreamID: id, Payload: payload})
}

// Ping sends a liveness probe. The device answers with a PONG which shows
// up in the tail.
func (m *StreamMux) Ping() error {
	return m.conn.WriteFrame(Frame{Event: EVENT_PING})
}

// Monitor reads frames from the connection and dispatches them to
// subscribers until the context is cancelled or the link fails.
func (m *StreamMux) Monitor(ctx context.Context) error {
	frameChan := make(chan Frame)
	readErrChan := make(chan error, 1)

	// The blocking ReadFrame runs in its own goroutine so the outer loop
	// can await frames and context cancellation together.
	go func() {
		defer close(frameChan)
		for {
			f, err := m.conn.ReadFrame()
			if err != nil {
				select {
				case readErrChan <- err:
				case <-ctx.Done():
				}
				return
			}
			select {
			case frameChan <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrChan:
			if m.isClosing() {
				return nil
			}
			return err

		case f, ok := <-frameChan:
			if !ok {
				return nil
			}
			if m.isClosing() {
				return nil
			}
			m.dispatch(f)
		}
	}
}

func (m *StreamMux) isClosing() bool {
	m.closingMu.Lock()
	defer m.closingMu.Unlock()
	return m.closing
}

func (m *StreamMux) dispatch(f Frame) {
	switch f.Event {
	case EVENT_WRITE:
		m.streamMu.Lock()
		name, known := m.names[f.StreamID]
		m.streamMu.Unlock()
		if !known {
			monitoring.Logf("Dropping frame for unknown stream id %d (%d bytes)", f.StreamID, len(f.Payload))
			return
		}

		m.statsMu.Lock()
		m.delivered[name]++
		m.statsMu.Unlock()

		m.subscriberMu.Lock()
		for _, ch := range m.subscribers[name] {
			select {
			case ch <- f.Payload:
			default:
				// subscriber queue full, drop rather than stall the link
				m.statsMu.Lock()
				m.dropped[name]++
				m.statsMu.Unlock()
			}
		}
		m.notifyTails(fmt.Sprintf("WRITE stream=%s bytes=%d", name, len(f.Payload)))
		m.subscriberMu.Unlock()

	case EVENT_PING:
		if err := m.conn.WriteFrame(Frame{Event: EVENT_PONG}); err != nil {
			monitoring.Logf("Failed to answer ping: %v", err)
		}

	default:
		m.subscriberMu.Lock()
		m.notifyTails(fmt.Sprintf("%s stream=%d bytes=%d", f.Event, f.StreamID, len(f.Payload)))
		m.subscriberMu.Unlock()
	}
}

// notifyTails requires subscriberMu held.
func (m *StreamMux) notifyTails(line string) {
	for _, ch := range m.tails {
		select {
		case ch <- line:
		default:
		}
	}
}

// StreamStats is the per-stream delivery counters since the mux started.
type StreamStats struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Stats returns a snapshot of delivery counters per stream.
func (m *StreamMux) Stats() map[string]StreamStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	out := make(map[string]StreamStats, len(m.delivered))
	for name, n := range m.delivered {
		out[name] = StreamStats{Delivered: n, Dropped: m.dropped[name]}
	}
	return out
}

// Close resets the device, closes all subscriber channels and the
// underlying connection.
func (m *StreamMux) Close() error {
	m.closingMu.Lock()
	if m.closing {
		m.closingMu.Unlock()
		return nil
	}
	m.closing = true
	m.closingMu.Unlock()

	// Best effort: ask the device to tear down the pipeline.
	if err := m.conn.WriteFrame(Frame{Event: EVENT_RESET}); err != nil {
		monitoring.Logf("Reset on close failed: %v", err)
	}

	m.subscriberMu.Lock()
	for stream, subs := range m.subscribers {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(m.subscribers, stream)
	}
	for id, ch := range m.tails {
		close(ch)
		delete(m.tails, id)
	}
	m.subscriberMu.Unlock()

	return m.conn.Close()
}

// AttachAdminRoutes attaches link debugging endpoints to the given HTTP
// mux served at /debug/. These routes are accessible only over
// localhost/via Tailscale and are not publicly accessible.
func (m *StreamMux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("xlink-streams", "Open XLink streams and delivery counters", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		type streamRow struct {
			Name      string `json:"name"`
			Delivered uint64 `json:"delivered"`
			Dropped   uint64 `json:"dropped"`
		}
		stats := m.Stats()
		var rows []streamRow
		for _, name := range m.StreamNames() {
			s := stats[name]
			rows = append(rows, streamRow{Name: name, Delivered: s.Delivered, Dropped: s.Dropped})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rows)
	}))

	// Server-Side Events (SSE) tail of link frames for live debugging.
	debug.HandleSilentFunc("xlink-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := m.SubscribeTail()
		defer m.UnsubscribeTail(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
