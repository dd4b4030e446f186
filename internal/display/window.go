//go:build gui
// +build gui

package display

import (
	"sync"

	"gocv.io/x/gocv"
)

// WindowSink shows each stream in its own gocv window. Show must be
// called from one goroutine (the run loop); gocv windows are not
// thread-safe.
type WindowSink struct {
	mu      sync.Mutex
	windows map[string]*gocv.Window
	keys    chan rune
}

// NewWindowSink creates a windowed sink. Requires a display; available
// only when built with -tags=gui.
func NewWindowSink() (*WindowSink, error) {
	return &WindowSink{
		windows: make(map[string]*gocv.Window),
		keys:    make(chan rune, 8),
	}, nil
}

// Show displays a frame in the stream's window and pumps the GUI event
// loop. Keypresses observed during the pump are queued on Keys.
func (s *WindowSink) Show(stream string, img Image) error {
	s.mu.Lock()
	w, ok := s.windows[stream]
	if !ok {
		w = gocv.NewWindow(stream)
		s.windows[stream] = w
	}
	s.mu.Unlock()

	mat, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, img.BGR)
	if err != nil {
		return err
	}
	defer mat.Close()

	w.IMShow(mat)
	if key := w.WaitKey(1); key >= 0 {
		select {
		case s.keys <- rune(key):
		default:
		}
	}
	return nil
}

// Keys returns the queue of keypresses observed in the windows.
func (s *WindowSink) Keys() <-chan rune { return s.keys }

// Close destroys all windows.
func (s *WindowSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for stream, w := range s.windows {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.windows, stream)
	}
	return firstErr
}
