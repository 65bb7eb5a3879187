package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	persistlog "liferoom.ai/internal/persistence/log"
)

func activityCmd(args []string) {
	fs := flag.NewFlagSet("activity", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	agent := fs.String("agent", "", "agent name filter")
	kind := fs.String("kind", "", "entry kind filter (register, persona, framework, lifeday, intersection, simulate, simulate_error)")
	limit := fs.Int("limit", 50, "show at most this many newest entries")
	_ = fs.Parse(args)

	entries, err := persistlog.ReadActivity(filepath.Join(*dataDir, "activity"))
	if err != nil && len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "read activity:", err)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	for _, e := range filterActivity(entries, *agent, *kind, *limit) {
		line := fmt.Sprintf("%s\t%-14s\t%s", humanize.Time(e.TS), e.Kind, e.Agent)
		if e.Ref != "" {
			line += "\tref=" + e.Ref
		}
		if e.Detail != "" {
			line += "\t" + e.Detail
		}
		fmt.Println(line)
	}
}

// filterActivity keeps matching entries in log order and trims to the newest limit.
func filterActivity(entries []persistlog.Entry, agent, kind string, limit int) []persistlog.Entry {
	var out []persistlog.Entry
	for _, e := range entries {
		if agent != "" && !strings.EqualFold(e.Agent, agent) {
			continue
		}
		if kind != "" && e.Kind != kind {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
