package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"liferoom.ai/internal/persistence/store"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir, dbPath := dbPathFlag(fs)
	agent := fs.String("agent", "", "agent name filter (lifedays, intersections, timeline, persona)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "stats"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	st, err := store.Open(resolveDB(*dataDir, *dbPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer st.Close()

	rows, err := queryRoom(context.Background(), st, q, *agent, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range rows {
		_ = enc.Encode(r)
	}
}

// queryRoom runs one named read query and returns its rows for printing.
func queryRoom(ctx context.Context, st *store.Store, q, agent string, limit int) ([]any, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []any
	switch q {
	case "stats":
		s, err := st.Stats(ctx)
		if err != nil {
			return nil, err
		}
		s.RecentAgents = nil
		out = append(out, s)
	case "agents":
		agents, _, err := st.ListAgents(ctx, store.AgentQuery{Sort: store.SortNew, All: true, Limit: limit})
		if err != nil {
			return nil, err
		}
		for _, a := range agents {
			out = append(out, a)
		}
	case "lifedays":
		days, _, err := st.ListLifeDays(ctx, store.LifeDayQuery{Agent: agent, Sort: store.SortReal, Limit: limit})
		if err != nil {
			return nil, err
		}
		for _, d := range days {
			out = append(out, d)
		}
	case "timeline":
		if agent == "" {
			return nil, fmt.Errorf("timeline needs -agent")
		}
		days, err := st.Timeline(ctx, agent)
		if err != nil {
			return nil, err
		}
		for _, d := range days {
			out = append(out, d)
		}
	case "intersections":
		xs, _, err := st.ListIntersections(ctx, agent, limit, 0)
		if err != nil {
			return nil, err
		}
		for _, x := range xs {
			out = append(out, x)
		}
	case "persona":
		if agent == "" {
			return nil, fmt.Errorf("persona needs -agent")
		}
		p, err := st.PersonaByName(ctx, agent)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	default:
		return nil, fmt.Errorf("unknown query %q (stats|agents|lifedays|timeline|intersections|persona)", q)
	}
	return out, nil
}
