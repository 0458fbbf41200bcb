package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"circuitcraft.ai/internal/persistence/snapshot"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
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

// snapshotCmd prints the header and block count of a snapshot file.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used when -path is empty)")
	path := fs.String("path", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -path")
			os.Exit(2)
		}
		p = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if p == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(struct {
		Path   string          `json:"path"`
		Header snapshot.Header `json:"header"`
		Seed   int64           `json:"seed"`
		Blocks int             `json:"blocks"`
	}{p, snap.Header, snap.Seed, len(snap.Blocks)})
}
