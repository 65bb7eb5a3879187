package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"liferoom.ai/internal/persistence/snapshot"
	"liferoom.ai/internal/persistence/store"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "export":
			exportCmd(os.Args[2:])
			return
		case "import":
			importCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "activity":
			activityCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "cron":
			cronCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

type snapInfo struct {
	Path   string
	Size   int64
	Header snapshot.Header
}

// listSnapshots returns the snapshots under dir, newest first. Files whose
// header cannot be read are skipped.
func listSnapshots(dir string) ([]snapInfo, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []snapInfo
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			continue
		}
		var size int64
		if fi, err := e.Info(); err == nil {
			size = fi.Size()
		}
		out = append(out, snapInfo{Path: path, Size: size, Header: h})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Header.TakenAt.After(out[j].Header.TakenAt) })
	return out, nil
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	snaps, err := listSnapshots(filepath.Join(*dataDir, "snapshots"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, s := range snaps {
		fmt.Printf("%s\t%s\t%s\tagents=%d days=%d intersections=%d\n",
			filepath.Base(s.Path), humanize.Bytes(uint64(s.Size)), humanize.Time(s.Header.TakenAt),
			s.Header.Agents, s.Header.LifeDays, s.Header.Intersections)
	}
}

func dbPathFlag(fs *flag.FlagSet) (dataDir, dbPath *string) {
	dataDir = fs.String("data", "./data", "runtime data directory")
	dbPath = fs.String("db", "", "sqlite db path (default: <data>/room.sqlite)")
	return
}

func resolveDB(dataDir, dbPath string) string {
	if p := strings.TrimSpace(dbPath); p != "" {
		return p
	}
	return filepath.Join(dataDir, "room.sqlite")
}

func exportRoom(ctx context.Context, dbPath, out string, now time.Time) (snapshot.Header, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return snapshot.Header{}, err
	}
	defer st.Close()
	d, err := st.Export(ctx)
	if err != nil {
		return snapshot.Header{}, err
	}
	snap := snapshot.New(d, now)
	return snap.Header, snapshot.Write(out, snap)
}

var errNotEmpty = errors.New("store is not empty (use -force to replace it)")

func importRoom(ctx context.Context, dbPath, snapPath string, force bool) (snapshot.Header, error) {
	snap, err := snapshot.Read(snapPath)
	if err != nil {
		return snapshot.Header{}, err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return snapshot.Header{}, err
	}
	defer st.Close()
	if !force {
		stats, err := st.Stats(ctx)
		if err != nil {
			return snapshot.Header{}, err
		}
		if stats.Agents > 0 {
			return snapshot.Header{}, errNotEmpty
		}
	}
	return snap.Header, st.Import(ctx, snap.Room)
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dataDir, dbPath := dbPathFlag(fs)
	outPath := fs.String("out", "", "output snapshot path (default: <data>/snapshots/<unix>.snap.zst)")
	_ = fs.Parse(args)

	now := time.Now()
	out := strings.TrimSpace(*outPath)
	if out == "" {
		out = filepath.Join(*dataDir, "snapshots", strconv.FormatInt(now.Unix(), 10)+".snap.zst")
	}
	h, err := exportRoom(context.Background(), resolveDB(*dataDir, *dbPath), out, now)
	if err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s agents=%d days=%d intersections=%d\n", out, h.Agents, h.LifeDays, h.Intersections)
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dataDir, dbPath := dbPathFlag(fs)
	snapPath := fs.String("snapshot", "", "snapshot path (default: latest under <data>/snapshots)")
	force := fs.Bool("force", false, "replace a non-empty store")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		snaps, err := listSnapshots(filepath.Join(*dataDir, "snapshots"))
		if err != nil || len(snaps) == 0 {
			fmt.Fprintln(os.Stderr, "no snapshot found; pass -snapshot")
			os.Exit(2)
		}
		path = snaps[0].Path
	}
	h, err := importRoom(context.Background(), resolveDB(*dataDir, *dbPath), path, *force)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import:", err)
		os.Exit(1)
	}
	fmt.Printf("imported %s agents=%d days=%d intersections=%d\n", filepath.Base(path), h.Agents, h.LifeDays, h.Intersections)
}
