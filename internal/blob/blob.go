// Package blob caches compiled neural network blobs on local disk,
// downloading them from the public model artifact host on first use.
package blob

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/oakstress/internal/monitoring"
)

const (
	// DefaultName is the detection model the stress pipeline runs.
	DefaultName = "yolo-v4-tiny-tf_openvino_2021.4_6shave.blob"

	downloadAttempts = 5
	retryDelay       = 2 * time.Second
)

// DefaultBaseURL is where blobs are fetched from when no override is
// given.
const DefaultBaseURL = "https://artifacts.luxonis.com/artifactory/luxonis-depthai-data-local/network"

// Store resolves model blobs against a cache directory.
type Store struct {
	// Dir is the cache directory. Created on first download.
	Dir string
	// BaseURL overrides DefaultBaseURL, mainly for tests.
	BaseURL string
	// Client overrides http.DefaultClient, mainly for tests.
	Client *http.Client
	// RetryDelay overrides the pause between download attempts.
	RetryDelay time.Duration
}

// DefaultDir returns the per-user blob cache directory.
func DefaultDir() string {
	cache, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "oakstress-blobs")
	}
	return filepath.Join(cache, "oakstress", "blobs")
}

// Ensure returns the path of the named blob, downloading it into the
// cache first when absent. A complete cached file is returned without
// any network traffic.
func (s *Store) Ensure(name string) (string, error) {
	path := filepath.Join(s.Dir, name)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, nil
	}

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("create blob cache dir: %w", err)
	}

	base := s.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	url := base + "/" + name

	delay := s.RetryDelay
	if delay == 0 {
		delay = retryDelay
	}

	var lastErr error
	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(delay)
		}
		monitoring.Logf("Downloading model blob %s (attempt %d/%d)", name, attempt, downloadAttempts)
		if err := s.download(url, path); err != nil {
			lastErr = err
			monitoring.Logf("Blob download failed: %v", err)
			continue
		}
		return path, nil
	}
	return "", fmt.Errorf("download %s after %d attempts: %w", name, downloadAttempts, lastErr)
}

// download fetches url into path via a temp file so a partial fetch
// never looks like a cached blob.
func (s *Store) download(url, path string) error {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".partial-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return fmt.Errorf("short download: got %d of %d bytes", n, resp.ContentLength)
	}
	if n == 0 {
		return fmt.Errorf("empty blob from %s", url)
	}
	return os.Rename(tmp.Name(), path)
}
