// Package monitor serves the HTTP interface for a live stress run:
// health and status pages, per-stream frame previews, telemetry
// streaming and remote tuning control.
package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/oakstress/internal/db"
	"github.com/banshee-data/oakstress/internal/display"
	"github.com/banshee-data/oakstress/internal/oak/message"
	"github.com/banshee-data/oakstress/internal/oak/xlink"
	"github.com/banshee-data/oakstress/internal/stress"
)

//go:embed status.html
var statusHTML embed.FS

// WebServer handles the HTTP interface for monitoring a stress run.
type WebServer struct {
	address     string
	runner      *stress.Runner
	store       *display.FrameStore
	db          *db.DB
	link        *xlink.StreamMux
	server      *http.Server
	deviceName  string
	mxid        string
	productName string
	usbSpeed    string
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address     string
	Runner      *stress.Runner
	Store       *display.FrameStore // nil when frames go to GUI windows
	DB          *db.DB              // nil when recording is disabled
	Link        *xlink.StreamMux    // device link mux for debug routes
	DeviceName  string
	MxID        string
	ProductName string
	UsbSpeed    string
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:     config.Address,
		runner:      config.Runner,
		store:       config.Store,
		db:          config.DB,
		link:        config.Link,
		deviceName:  config.DeviceName,
		mxid:        config.MxID,
		productName: config.ProductName,
		usbSpeed:    config.UsbSpeed,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}
	return ws
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start begins the HTTP server in a goroutine and handles graceful
// shutdown when the context is cancelled.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/stress/status", ws.handleAPIStatus)
	mux.HandleFunc("/api/stress/frame/", ws.handleFrame)
	mux.HandleFunc("/api/stress/mjpeg/", ws.handleMJPEG)
	mux.HandleFunc("/api/stress/telemetry", ws.handleTelemetry)
	mux.HandleFunc("/api/stress/control", ws.handleControl)
	mux.HandleFunc("/api/stress/runs", ws.handleRuns)

	debug := tsweb.Debugger(mux)
	debug.Handle("camera-control", "Send a raw camera control message to the device",
		http.HandlerFunc(ws.handleRawCameraControl))

	if ws.link != nil {
		ws.link.AttachAdminRoutes(mux)
	}
	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}
	return mux
}

// handleRawCameraControl sends a caller-supplied control message
// straight down the cam_control stream. Expects a POST with a JSON
// CameraControl body.
func (ws *WebServer) handleRawCameraControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var ctl message.CameraControl
	if err := json.NewDecoder(r.Body).Decode(&ctl); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode control: %v", err))
		return
	}
	if err := ws.runner.SendCameraControl(&ctl); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("send control: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "control": ctl})
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "oakstress", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	tmpl, err := template.ParseFS(statusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		DeviceName  string
		MxID        string
		ProductName string
		UsbSpeed    string
		HTTPAddress string
		Uptime      string
		Tuning      stress.Tuning
		Streams     []stress.StreamSnapshot
		FrameNames  []string
	}{
		DeviceName:  ws.deviceName,
		MxID:        ws.mxid,
		ProductName: ws.productName,
		UsbSpeed:    ws.usbSpeed,
		HTTPAddress: ws.address,
		Uptime:      ws.runner.Stats().GetUptime().Round(time.Second).String(),
		Tuning:      ws.runner.Tuning(),
		Streams:     ws.runner.Stats().GetLatestSnapshot(),
		FrameNames:  ws.frameNames(),
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

func (ws *WebServer) frameNames() []string {
	if ws.store == nil {
		return nil
	}
	return ws.store.Streams()
}

// handleAPIStatus returns the live run state as JSON.
func (ws *WebServer) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var latestTelemetry any
	if telemetry := ws.runner.Telemetry(); len(telemetry) > 0 {
		latestTelemetry = telemetry[len(telemetry)-1]
	}

	status := map[string]any{
		"device":       ws.deviceName,
		"mxid":         ws.mxid,
		"product_name": ws.productName,
		"usb_speed":    ws.usbSpeed,
		"uptime":       ws.runner.Stats().GetUptime().Round(time.Second).String(),
		"tuning":       ws.runner.Tuning(),
		"streams":      ws.runner.Stats().GetLatestSnapshot(),
		"telemetry":    latestTelemetry,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleFrame serves the most recent frame of one stream as JPEG.
// Path: /api/stress/frame/<stream>.jpg
func (ws *WebServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	if ws.store == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no frame store (GUI display active)")
		return
	}
	stream := strings.TrimPrefix(r.URL.Path, "/api/stress/frame/")
	stream = strings.TrimSuffix(stream, ".jpg")
	if stream == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing stream name")
		return
	}

	img, at, ok := ws.store.Latest(stream)
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no frame for stream %q", stream))
		return
	}
	data, err := display.EncodeJPEG(img, 80)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("encode: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Frame-Time", at.UTC().Format(time.RFC3339Nano))
	w.Write(data)
}

// handleMJPEG streams a stream's frames as multipart JPEG until the
// client disconnects. Path: /api/stress/mjpeg/<stream>
func (ws *WebServer) handleMJPEG(w http.ResponseWriter, r *http.Request) {
	if ws.store == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no frame store (GUI display active)")
		return
	}
	stream := strings.TrimPrefix(r.URL.Path, "/api/stress/mjpeg/")
	if stream == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing stream name")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		ws.writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	const boundary = "oakstressframe"
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	var lastSent time.Time
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			img, at, ok := ws.store.Latest(stream)
			if !ok || !at.After(lastSent) {
				continue
			}
			data, err := display.EncodeJPEG(img, 80)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(data))
			if _, err := w.Write(data); err != nil {
				return
			}
			fmt.Fprint(w, "\r\n")
			flusher.Flush()
			lastSent = at
		}
	}
}

// handleTelemetry streams device health reports as server-sent events.
func (ws *WebServer) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		ws.writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	sent := 0
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			telemetry := ws.runner.Telemetry()
			for ; sent < len(telemetry); sent++ {
				data, err := json.Marshal(telemetry[sent])
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", data)
			}
			flusher.Flush()
		}
	}
}

// handleControl applies one tuning key press sent by a remote client.
// Expects POST with form value or query param `key` holding a single
// character from the terminal key map.
func (ws *WebServer) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	key := r.FormValue("key")
	if len(key) != 1 {
		ws.writeJSONError(w, http.StatusBadRequest, "missing or invalid 'key' parameter")
		return
	}
	if key == "q" {
		// Quitting belongs to the terminal operator, not remote clients.
		ws.writeJSONError(w, http.StatusForbidden, "quit is not available over HTTP")
		return
	}

	change, err := ws.runner.ApplyKey(r.Context(), key[0])
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("apply key: %v", err))
		return
	}
	if change == stress.ChangeNone {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown key %q", key))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"tuning": ws.runner.Tuning(),
	})
}

// handleRuns lists recorded runs from the database.
func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}
	runs, err := ws.db.Runs(50)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list runs: %v", err))
		return
	}

	type runSummary struct {
		RunID       string `json:"run_id"`
		MxID        string `json:"mxid"`
		BoardName   string `json:"board_name"`
		ProductName string `json:"product_name"`
		UsbSpeed    string `json:"usb_speed"`
		Started     string `json:"started"`
		Duration    string `json:"duration"`
		Live        bool   `json:"live"`
	}
	summaries := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, runSummary{
			RunID:       run.RunID,
			MxID:        run.MxID,
			BoardName:   run.BoardName,
			ProductName: run.ProductName,
			UsbSpeed:    run.UsbSpeed,
			Started:     run.Started().UTC().Format(time.RFC3339),
			Duration:    run.Duration().Round(time.Second).String(),
			Live:        run.FinishedNanos == 0,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// Close shuts down the web server.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
