package display

import (
	"context"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/banshee-data/oakstress/internal/monitoring"
)

// FrameStore is a headless sink retaining the latest frame per stream
// for the HTTP monitor to serve.
type FrameStore struct {
	mu     sync.RWMutex
	latest map[string]storedFrame
}

type storedFrame struct {
	img Image
	at  time.Time
}

// NewFrameStore creates an empty store.
func NewFrameStore() *FrameStore {
	return &FrameStore{latest: make(map[string]storedFrame)}
}

// Show retains the frame as the stream's latest.
func (s *FrameStore) Show(stream string, img Image) error {
	s.mu.Lock()
	s.latest[stream] = storedFrame{img: img, at: time.Now()}
	s.mu.Unlock()
	return nil
}

// Latest returns the most recent frame for a stream and when it
// arrived.
func (s *FrameStore) Latest(stream string) (Image, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.latest[stream]
	return f.img, f.at, ok
}

// Streams returns the stream names that have shown at least one frame.
func (s *FrameStore) Streams() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.latest))
	for name := range s.latest {
		names = append(names, name)
	}
	return names
}

func (s *FrameStore) Close() error { return nil }

// ReadKeys puts the terminal into raw mode and forwards single
// keypresses to the returned channel until the context is cancelled.
// On a non-terminal stdin (service deployments) it returns a nil
// channel and no error; the monitor's control endpoint is the input
// path then.
func ReadKeys(ctx context.Context) (<-chan rune, func(), error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, func() {}, nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, err
	}
	restore := func() {
		if err := term.Restore(fd, oldState); err != nil {
			monitoring.Logf("Restoring terminal failed: %v", err)
		}
	}

	keys := make(chan rune, 8)
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			if ctx.Err() != nil {
				return
			}
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			select {
			case keys <- rune(buf[0]):
			case <-ctx.Done():
				return
			}
		}
	}()
	return keys, restore, nil
}
