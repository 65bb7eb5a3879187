package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"liferoom.ai/internal/api"
	"liferoom.ai/internal/config"
	"liferoom.ai/internal/geo"
	"liferoom.ai/internal/llm"
	persistlog "liferoom.ai/internal/persistence/log"
	"liferoom.ai/internal/persistence/store"
	"liferoom.ai/internal/photos"
	"liferoom.ai/internal/protocol"
	"liferoom.ai/internal/room"
	"liferoom.ai/internal/transport/feed"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configPath = flag.String("config", "./configs/room.yaml", "room config path (defaults are used when missing)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		baseURL    = flag.String("base_url", "", "public base URL used in docs and links (default: derived from the request)")

		snapPath      = flag.String("snapshot", "", "path to a room snapshot to restore into an empty store (optional)")
		loadLatest    = flag.Bool("load_latest_snapshot", true, "restore the latest snapshot from the data dir when the store is empty")
		snapshotEvery = flag.Duration("snapshot_every", time.Hour, "room snapshot interval (0 disables)")
		noScheduler   = flag.Bool("no_scheduler", false, "do not run the background simulation scheduler")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, found, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !found {
		logger.Printf("config not found (%s); using defaults", *configPath)
	}

	_ = os.MkdirAll(*dataDir, 0o755)
	st, err := store.Open(filepath.Join(*dataDir, "room.sqlite"))
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	snapDir := snapshotDir(*dataDir)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(snapDir)
	}
	if snapshotToLoad != "" {
		restored, err := restoreSnapshot(ctx, st, snapshotToLoad)
		if err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
		if restored {
			logger.Printf("restored room from snapshot=%s", filepath.Base(snapshotToLoad))
		}
	}

	validator, err := protocol.LoadSchemas()
	if err != nil {
		logger.Fatalf("load schemas: %v", err)
	}

	r2Mirror, err := buildR2MirrorRuntime(*dataDir, logger)
	if err != nil {
		logger.Fatalf("init r2 mirror: %v", err)
	}
	defer r2Mirror.Close()

	activity := persistlog.NewActivityLogger(*dataDir)
	defer activity.Close()

	hub := feed.NewHub(cfg.Feed, validator, func(ctx context.Context) (int, int) {
		s, err := st.Stats(ctx)
		if err != nil {
			return 0, 0
		}
		return s.Agents, s.LifeDays
	}, log.New(os.Stdout, "[feed] ", log.LstdFlags|log.Lmicroseconds))

	fetcher := photos.NewFetcher(cfg.Photos.ProxyMaxBytes)
	var archive api.Archiver
	if r2Mirror.enabled {
		archive = r2Mirror
	}
	events := api.NewEvents(hub, activity, archive, fetcher, cfg.Photos.PlaceholderURL, logger)

	chat := llm.New(cfg.LLM, envString("LR_OPENROUTER_API_KEY"), *baseURL)
	searcher := photos.NewSearcher(cfg.Photos, envString("LR_BRAVE_API_KEY"))
	if !chat.Configured() {
		logger.Printf("LR_OPENROUTER_API_KEY not set; simulation and geocode fallback disabled")
	}
	if !searcher.Configured() {
		logger.Printf("LR_BRAVE_API_KEY not set; life days use placeholder photos")
	}

	sim := room.NewSimulator(st, chat, searcher, events, cfg.Schedule.ContextDays)
	sched := room.NewScheduler(sim, st, cfg.Schedule.Cooldown, cfg.Schedule.AgentTimeout,
		log.New(os.Stdout, "[scheduler] ", log.LstdFlags|log.Lmicroseconds))
	if *noScheduler || cfg.Schedule.DisableOnStart {
		logger.Printf("background scheduler disabled")
	} else {
		go sched.Start(ctx, cfg.Schedule.Interval, false)
	}

	go runSnapshots(ctx, st, snapDir, *snapshotEvery, r2Mirror, logger)

	deps := api.Deps{
		Store:     st,
		Validator: validator,
		Simulator: sim,
		Scheduler: sched,
		Hub:       hub,
		Events:    events,
		Fetcher:   fetcher,
		Lookup:    geo.Default(),
	}
	if searcher.Configured() {
		deps.Search = searcher
	}
	if chat.Configured() {
		deps.Geocoder = chat
	}
	if r2Mirror.enabled {
		deps.Mirror = r2Mirror
	}
	apiSrv := api.NewServer(api.Options{
		Room:       cfg,
		BaseURL:    *baseURL,
		AdminKey:   envString("LR_ADMIN_KEY"),
		CronSecret: envString("LR_CRON_SECRET"),
	}, deps, logger)

	mux := http.NewServeMux()
	mux.Handle("/", apiSrv.Handler())

	enableAdminHTTP := envBool("LR_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("LR_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only snapshot trigger.
		mux.HandleFunc("POST /admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 30*time.Second)
			defer cancel2()
			path, err := writeRoomSnapshot(ctx2, st, snapDir, time.Now())
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			r2Mirror.EnqueueFile(path)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "path": filepath.Base(path)})
		})
	} else {
		logger.Printf("admin endpoints disabled (LR_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (LR_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
