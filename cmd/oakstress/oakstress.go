// Command oakstress runs a stress workload against an OAK camera
// device, loading every sensor, the encoder, and the neural inference
// blocks at once while recording device health.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/oakstress/internal/blob"
	"github.com/banshee-data/oakstress/internal/config"
	"github.com/banshee-data/oakstress/internal/db"
	"github.com/banshee-data/oakstress/internal/display"
	"github.com/banshee-data/oakstress/internal/oak"
	"github.com/banshee-data/oakstress/internal/oak/device"
	"github.com/banshee-data/oakstress/internal/oak/oaksim"
	"github.com/banshee-data/oakstress/internal/oak/xlink"
	"github.com/banshee-data/oakstress/internal/report"
	"github.com/banshee-data/oakstress/internal/stress"
	"github.com/banshee-data/oakstress/internal/stress/monitor"
	"github.com/banshee-data/oakstress/internal/version"
)

var (
	mxid        = flag.String("mxid", "", "Device id to connect to (empty: first device found)")
	list        = flag.Bool("list", false, "Discover devices, print them, and exit")
	devMode     = flag.Bool("dev", false, "Run against an in-process simulated device")
	devProfile  = flag.String("dev-profile", "oak-d", "Simulated hardware profile (with -dev)")
	duration    = flag.Duration("duration", 0, "Stop after this long (0: run until q or SIGINT)")
	record      = flag.String("record", "", "Record telemetry and rates into this sqlite file")
	listen      = flag.String("listen", "", "Monitor HTTP listen address (empty: no monitor)")
	capturePath = flag.String("capture", "", "Write device traffic to this pcap file")
	blobPath    = flag.String("blob", "", "Detection blob path (empty: download and cache)")
	logInterval = flag.Duration("log-interval", 5*time.Second, "Interval between rate log lines")
	gui         = flag.Bool("gui", false, "Show streams in OpenCV windows (needs the gui build tag)")
	configPath  = flag.String("config", "", "JSON config file; flags left at their defaults take values from it")
	showVersion = flag.Bool("version", false, "Print version and exit")

	discoveryTimeout = flag.Duration("discovery-timeout", 3*time.Second, "How long to wait for device discovery")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("oakstress %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *list {
		devices, err := xlink.Discover(ctx, *discoveryTimeout)
		if err != nil {
			log.Fatalf("discovery failed: %v", err)
		}
		if len(devices) == 0 {
			fmt.Println("no devices found")
			return
		}
		for _, d := range devices {
			fmt.Println(d)
		}
		return
	}

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	cfg := config.Empty()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	// Explicit flags win over the config file.
	recordPath := *record
	if recordPath == "" {
		recordPath = cfg.GetRecord("")
	}
	listenAddr := *listen
	if listenAddr == "" {
		listenAddr = cfg.GetListen("")
	}
	runDuration := *duration
	if runDuration == 0 {
		runDuration = cfg.GetDuration(0)
	}
	logEvery := *logInterval
	if logEvery == 5*time.Second {
		logEvery = cfg.GetLogInterval(logEvery)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	// Resolve and connect the device, real or simulated.
	var dev *device.Device
	if *devMode {
		profile, err := oaksim.LookupProfile(*devProfile)
		if err != nil {
			return err
		}
		sim, err := oaksim.New(ctx, profile)
		if err != nil {
			return fmt.Errorf("start simulator: %v", err)
		}
		defer sim.Close()
		dev, err = device.ConnectInfo(ctx, sim.Info())
		if err != nil {
			return fmt.Errorf("connect to simulator: %v", err)
		}
	} else {
		var err error
		dev, err = device.Connect(ctx, *mxid, *discoveryTimeout)
		if err != nil {
			return fmt.Errorf("connect: %v", err)
		}
	}
	defer dev.Close()

	if *capturePath != "" {
		capture, err := xlink.NewCapture(*capturePath)
		if err != nil {
			return fmt.Errorf("open capture file: %v", err)
		}
		defer func() {
			log.Printf("captured %d frames to %s", capture.Frames(), *capturePath)
			capture.Close()
		}()
		dev.SetCapture(capture)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dev.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("device link lost: %v", err)
		}
	}()

	// The original tool treats a calibration read failure as fatal: it
	// means the stereo topology cannot be derived.
	calib, err := dev.ReadCalibration(ctx)
	if err != nil {
		return fmt.Errorf("read calibration: %v", err)
	}
	features, err := dev.ConnectedCameraFeatures(ctx)
	if err != nil {
		return fmt.Errorf("read camera features: %v", err)
	}
	speed, err := dev.UsbSpeed(ctx)
	if err != nil {
		return fmt.Errorf("read usb speed: %v", err)
	}
	log.Printf("oakstress %s connected to %s (%s), usb speed: %s",
		version.Version, calib.BoardName, dev.Info().MxID, speed)

	blobFile := *blobPath
	if blobFile == "" {
		blobFile = cfg.GetBlob("")
	}
	modelPath, err := resolveBlob(features, blobFile)
	if err != nil {
		return err
	}

	build, err := stress.BuildPipeline(features, calib, modelPath)
	if err != nil {
		return fmt.Errorf("build pipeline: %v", err)
	}
	for _, w := range build.Warnings {
		log.Printf("warning: %s", w)
	}

	// Recording is optional. The recorder flushes on its own cadence and
	// finalises the run row on close.
	var rec stress.Recorder
	var dbRec *db.Recorder
	var database *db.DB
	if recordPath != "" {
		database, err = db.NewDB(recordPath)
		if err != nil {
			return fmt.Errorf("open recording db: %v", err)
		}
		defer database.Close()

		schemaJSON, err := build.Pipeline.MarshalSchema()
		if err != nil {
			return fmt.Errorf("marshal pipeline schema: %v", err)
		}
		recorder, err := db.NewRecorder(database, db.RecorderConfig{
			MxID:         dev.Info().MxID,
			BoardName:    calib.BoardName,
			ProductName:  calib.ProductName,
			UsbSpeed:     speed.String(),
			PipelineJSON: string(schemaJSON),
		})
		if err != nil {
			return fmt.Errorf("start recorder: %v", err)
		}
		defer recorder.Close()
		log.Printf("recording run %s to %s", recorder.RunID(), recordPath)

		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Run(ctx.Done(), 5*time.Second)
		}()
		rec = recorder
		dbRec = recorder
	}

	// Frames either go to OpenCV windows or to an in-memory store the
	// web monitor serves.
	var sink display.Sink
	var store *display.FrameStore
	var keys <-chan rune
	if *gui {
		window, err := display.NewWindowSink()
		if err != nil {
			return fmt.Errorf("open display windows: %v", err)
		}
		defer window.Close()
		sink, keys = window, window.Keys()
	} else {
		store = display.NewFrameStore()
		sink = store
		ch, restore, err := display.ReadKeys(ctx)
		if err == nil {
			defer restore()
			keys = ch
		} else {
			log.Printf("interactive tuning disabled: %v", err)
		}
	}

	runner, err := stress.NewRunner(stress.RunConfig{
		Device:      dev,
		Build:       build,
		Tuning:      cfg.Tuning(),
		Sink:        sink,
		Keys:        keys,
		Rec:         rec,
		UsbSpeed:    speed,
		Duration:    runDuration,
		LogInterval: logEvery,
	})
	if err != nil {
		return fmt.Errorf("prepare runner: %v", err)
	}

	if listenAddr != "" {
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address:     listenAddr,
			Runner:      runner,
			Store:       store,
			DB:          database,
			Link:        dev.Mux(),
			DeviceName:  calib.BoardName,
			MxID:        dev.Info().MxID,
			ProductName: calib.ProductName,
			UsbSpeed:    speed.String(),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				log.Printf("monitor server: %v", err)
			}
		}()
	}

	if err := dev.StartPipeline(ctx, build.Pipeline); err != nil {
		return fmt.Errorf("start pipeline: %v", err)
	}

	summary, err := runner.Run(ctx)
	if summary != nil {
		printSummary(summary)
		if dbRec != nil {
			dbRec.RecordSummary(summary)
		}
	}
	return err
}

// resolveBlob returns the detection blob path, downloading into the
// user cache when none was given. Boards without a color camera build
// no detection network and need no blob.
func resolveBlob(features []oak.CameraFeatures, path string) (string, error) {
	if path != "" {
		return path, nil
	}
	hasColor := false
	for _, f := range features {
		if f.Kind() == oak.SensorColor {
			hasColor = true
			break
		}
	}
	if !hasColor || *devMode {
		return "", nil
	}
	store := &blob.Store{Dir: blob.DefaultDir()}
	path, err := store.Ensure(blob.DefaultName)
	if err != nil {
		return "", fmt.Errorf("fetch detection blob: %v", err)
	}
	return path, nil
}

func printSummary(s *stress.Summary) {
	fmt.Printf("\nRun finished after %s\n", s.Uptime.Round(time.Second))
	names := make([]string, 0, len(s.Streams))
	for name := range s.Streams {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		totals := s.Streams[name]
		fmt.Printf("  %-24s %s frames, %s bytes\n", name,
			stress.FormatWithCommas(totals.Frames), stress.FormatWithCommas(totals.Bytes))
	}
	if s.DecodeErrors > 0 {
		fmt.Printf("  decode errors: %d\n", s.DecodeErrors)
	}
	fmt.Printf("  final tuning: %s\n", s.FinalTuning)
	if n := len(s.Telemetry); n > 0 {
		temps := make([]float64, 0, n)
		cpu := make([]float64, 0, n)
		for _, t := range s.Telemetry {
			temps = append(temps, t.Info.ChipTemperature.Average)
			cpu = append(cpu, t.Info.LeonCssCpuUsage.Average)
		}
		ts := report.Summarize(temps)
		cs := report.Summarize(cpu)
		fmt.Printf("  chip temp: mean %.1fC, max %.1fC  css cpu: mean %.1f%%, max %.1f%%\n",
			ts.Mean, ts.Max, cs.Mean, cs.Max)
	}
}
