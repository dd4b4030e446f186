// Command oakreport summarises a recorded stress run: a text summary
// on stdout, optionally an interactive HTML report and static PNG
// plots.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/banshee-data/oakstress/internal/db"
	"github.com/banshee-data/oakstress/internal/report"
)

var (
	dbPath = flag.String("db", "stress.db", "Recording database to read")
	runID  = flag.String("run", "", "Run id to report on (empty: most recent run)")
	out    = flag.String("out", "", "Write an HTML report to this path")
	pngDir = flag.String("png", "", "Write PNG plots into this directory")
	listID = flag.Bool("list", false, "List recorded runs and exit")
)

func main() {
	flag.Parse()

	d, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("open %s: %v", *dbPath, err)
	}
	defer d.Close()

	if *listID {
		runs, err := d.Runs(0)
		if err != nil {
			log.Fatalf("list runs: %v", err)
		}
		for _, r := range runs {
			status := r.Duration().Round(time.Second).String()
			if r.FinishedNanos == 0 {
				status = "unfinished"
			}
			fmt.Printf("%s  %s  %s  %s\n", r.RunID, r.Started().Format("2006-01-02 15:04:05"), r.BoardName, status)
		}
		return
	}

	id := *runID
	if id == "" {
		runs, err := d.Runs(1)
		if err != nil || len(runs) == 0 {
			log.Fatalf("no runs recorded in %s", *dbPath)
		}
		id = runs[0].RunID
	}

	r, err := report.Build(d, id)
	if err != nil {
		log.Fatalf("build report: %v", err)
	}

	if err := r.WriteText(os.Stdout); err != nil {
		log.Fatalf("write summary: %v", err)
	}

	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("create %s: %v", *out, err)
		}
		if err := r.RenderHTML(f); err != nil {
			f.Close()
			log.Fatalf("render html: %v", err)
		}
		if err := f.Close(); err != nil {
			log.Fatalf("write %s: %v", *out, err)
		}
		fmt.Printf("wrote %s\n", *out)
	}

	if *pngDir != "" {
		files, err := r.SavePlots(*pngDir)
		if err != nil {
			log.Fatalf("save plots: %v", err)
		}
		for _, file := range files {
			fmt.Printf("wrote %s\n", file)
		}
	}
}
