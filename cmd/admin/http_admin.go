package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func serverFlag(fs *flag.FlagSet) *string {
	return fs.String("url", "http://127.0.0.1:8080", "server base url")
}

// call performs one admin request and prints the body. Non-2xx exits 1.
func call(method, u string, header http.Header, timeout time.Duration) {
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(2)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := serverFlag(fs)
	_ = fs.Parse(args)

	h := http.Header{}
	if k := strings.TrimSpace(os.Getenv("LR_ADMIN_KEY")); k != "" {
		h.Set("X-Admin-Key", k)
	}
	call(http.MethodGet, strings.TrimRight(strings.TrimSpace(*baseURL), "/")+"/api/admin/stats", h, 5*time.Second)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := serverFlag(fs)
	_ = fs.Parse(args)

	call(http.MethodPost, strings.TrimRight(strings.TrimSpace(*baseURL), "/")+"/admin/v1/snapshot", nil, 30*time.Second)
}

// cronCmd triggers one scheduler pass the way the external cron does.
func cronCmd(args []string) {
	fs := flag.NewFlagSet("cron", flag.ExitOnError)
	baseURL := serverFlag(fs)
	_ = fs.Parse(args)

	h := http.Header{}
	if s := strings.TrimSpace(os.Getenv("LR_CRON_SECRET")); s != "" {
		h.Set("Authorization", "Bearer "+s)
	}
	call(http.MethodGet, strings.TrimRight(strings.TrimSpace(*baseURL), "/")+"/api/cron/simulate", h, 10*time.Minute)
}
