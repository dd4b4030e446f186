package blob

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/banshee-data/oakstress/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func TestEnsureDownloadsOnce(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/model.blob" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("blobdata"))
	}))
	defer srv.Close()

	store := &Store{Dir: t.TempDir(), BaseURL: srv.URL, Client: srv.Client(), RetryDelay: time.Millisecond}

	path, err := store.Ensure("model.blob")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != "blobdata" {
		t.Errorf("blob content = %q, want %q", data, "blobdata")
	}

	// Second call is served from the cache.
	again, err := store.Ensure("model.blob")
	if err != nil {
		t.Fatalf("Ensure (cached): %v", err)
	}
	if again != path {
		t.Errorf("cached path = %q, want %q", again, path)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestEnsureRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("blobdata"))
	}))
	defer srv.Close()

	store := &Store{Dir: t.TempDir(), BaseURL: srv.URL, Client: srv.Client(), RetryDelay: time.Millisecond}
	if _, err := store.Ensure("model.blob"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
}

func TestEnsureGivesUp(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	store := &Store{Dir: t.TempDir(), BaseURL: srv.URL, Client: srv.Client(), RetryDelay: time.Millisecond}
	if _, err := store.Ensure("missing.blob"); err == nil {
		t.Fatal("Ensure succeeded for missing blob")
	}
	if got := hits.Load(); got != 5 {
		t.Errorf("server hits = %d, want 5", got)
	}
	if _, err := os.Stat(filepath.Join(store.Dir, "missing.blob")); !os.IsNotExist(err) {
		t.Error("failed download left a cache file behind")
	}
}

func TestEnsureRejectsShortDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	store := &Store{Dir: t.TempDir(), BaseURL: srv.URL, Client: srv.Client(), RetryDelay: time.Millisecond}
	if _, err := store.Ensure("model.blob"); err == nil {
		t.Fatal("Ensure accepted a truncated download")
	}
}
