package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"liferoom.ai/internal/config"
	"liferoom.ai/internal/geo"
	"liferoom.ai/internal/placement"
	"liferoom.ai/internal/roomview"
)

func main() {
	var (
		baseURL    = flag.String("url", "http://127.0.0.1:8080", "room server base url")
		configPath = flag.String("config", "./configs/room.yaml", "room config path (defaults are used when missing)")
		refresh    = flag.Duration("refresh", 30*time.Second, "data refresh interval")
		logPath    = flag.String("log", "", "log file (the terminal is busy drawing; default discards logs)")
		noGeocode  = flag.Bool("no_geocode", false, "do not resolve unknown cities through the server")
	)
	flag.Parse()

	var out io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open log:", err)
			os.Exit(2)
		}
		defer f.Close()
		out = f
	}
	logger := log.New(out, "[roomview] ", log.LstdFlags|log.Lmicroseconds)

	cfg, found, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(2)
	}
	if !found {
		logger.Printf("config not found (%s); using defaults", *configPath)
	}

	client := roomview.NewClient(*baseURL)
	opts := roomview.Options{
		Grid:     placement.Grid{W: cfg.Grid.Width, H: cfg.Grid.Height},
		Palette:  cfg.Grid.Palette,
		MaxTrail: cfg.Grid.MaxTrail,
		Cooldown: cfg.Schedule.Cooldown,
		Lookup:   geo.Default(),
	}
	if !*noGeocode {
		opts.Geocoder = client
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintln(os.Stderr, "screen:", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "screen init:", err)
		os.Exit(1)
	}
	defer screen.Fini()
	screen.EnableMouse()
	screen.SetStyle(tcell.StyleDefault)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("viewing %s (refresh=%s)", *baseURL, *refresh)
	roomview.New(screen, client, opts).Run(ctx, *refresh)
	logger.Printf("bye")
}
