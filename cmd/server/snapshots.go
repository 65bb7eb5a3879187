package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"liferoom.ai/internal/persistence/snapshot"
	"liferoom.ai/internal/persistence/store"
)

const snapSuffix = ".snap.zst"

func snapshotDir(dataDir string) string { return filepath.Join(dataDir, "snapshots") }

// writeRoomSnapshot exports the whole store to <dir>/<unix>.snap.zst.
func writeRoomSnapshot(ctx context.Context, st *store.Store, dir string, at time.Time) (string, error) {
	d, err := st.Export(ctx)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d%s", at.Unix(), snapSuffix))
	if err := snapshot.Write(path, snapshot.New(d, at)); err != nil {
		return "", err
	}
	return path, nil
}

// restoreSnapshot imports path into st when the store is still empty.
func restoreSnapshot(ctx context.Context, st *store.Store, path string) (bool, error) {
	stats, err := st.Stats(ctx)
	if err != nil {
		return false, err
	}
	if stats.Agents > 0 {
		return false, nil
	}
	snap, err := snapshot.Read(path)
	if err != nil {
		return false, fmt.Errorf("read snapshot: %w", err)
	}
	if err := st.Import(ctx, snap.Room); err != nil {
		return false, fmt.Errorf("import snapshot: %w", err)
	}
	return true, nil
}

// runSnapshots writes a snapshot every interval and hands each file to the
// mirror. It returns when ctx is done.
func runSnapshots(ctx context.Context, st *store.Store, dir string, every time.Duration, mirror *r2MirrorRuntime, logger *log.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			path, err := writeRoomSnapshot(ctx, st, dir, now)
			if err != nil {
				logger.Printf("snapshot write: %v", err)
				continue
			}
			mirror.EnqueueFile(path)
		}
	}
}

func latestSnapshot(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTS int64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, snapSuffix) {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSuffix(name, snapSuffix), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || ts > bestTS {
			bestTS = ts
			best = filepath.Join(dir, name)
		}
	}
	return best
}
