//go:build !gui
// +build !gui

package display

import "fmt"

// WindowSink is unavailable without the gui build tag.
type WindowSink struct{}

// NewWindowSink is a stub when GUI support is disabled.
// Build with -tags=gui to enable gocv windows.
func NewWindowSink() (*WindowSink, error) {
	return nil, fmt.Errorf("GUI support not enabled: rebuild with -tags=gui for windowed display")
}

func (s *WindowSink) Show(stream string, img Image) error {
	return fmt.Errorf("GUI support not enabled")
}

func (s *WindowSink) Keys() <-chan rune { return nil }

func (s *WindowSink) Close() error { return nil }
