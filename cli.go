package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize/english"

	"golos/server/internal/protocol"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was handled.
func RunCLI(args []string, controlAddr, mediaAddr, statusAddr string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("golos server %s\n", Version)
		return true
	case "status":
		return cliStatus(statusAddr)
	case "bot":
		return cliBot(args[1:], controlAddr, mediaAddr)
	default:
		return false
	}
}

func cliStatus(statusAddr string) bool {
	if statusAddr == "" {
		fmt.Fprintln(os.Stderr, "status requires -status-addr pointing at a running server")
		os.Exit(1)
	}
	base := statusBaseURL(statusAddr)
	client := &http.Client{Timeout: 5 * time.Second}

	var health struct {
		Status       string `json:"status"`
		Participants int    `json:"participants"`
		Rooms        int    `json:"rooms"`
		Uptime       string `json:"uptime"`
	}
	if err := fetchJSON(client, base+"/health", &health); err != nil {
		fmt.Fprintf(os.Stderr, "error querying status api: %v\n", err)
		os.Exit(1)
	}

	var state struct {
		Rooms []struct {
			Name    string `json:"name"`
			Members []struct {
				Name  string `json:"name"`
				Media bool   `json:"media"`
			} `json:"members"`
		} `json:"rooms"`
	}
	if err := fetchJSON(client, base+"/api/state", &state); err != nil {
		fmt.Fprintf(os.Stderr, "error querying status api: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Status: %s (up %s)\n", health.Status, health.Uptime)
	fmt.Printf("Participants: %d\n", health.Participants)
	fmt.Printf("Rooms: %d\n", health.Rooms)
	for _, room := range state.Rooms {
		fmt.Printf("  %s (%s)\n", room.Name, english.Plural(len(room.Members), "member", ""))
		for _, m := range room.Members {
			marker := ""
			if m.Media {
				marker = " [voice]"
			}
			fmt.Printf("    %s%s\n", m.Name, marker)
		}
	}
	fmt.Printf("Version: %s\n", Version)
	return true
}

func cliBot(args []string, controlAddr, mediaAddr string) bool {
	name := "testbot"
	room := protocol.DefaultRoom
	if len(args) > 0 {
		name = args[0]
	}
	if len(args) > 1 {
		room = args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := RunTestBot(ctx, controlAddr, mediaAddr, name, room); err != nil {
		fmt.Fprintf(os.Stderr, "bot error: %v\n", err)
		os.Exit(1)
	}
	return true
}

// statusBaseURL normalizes a listen-style address (":8890", "host:8890")
// into a base URL for queries.
func statusBaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		return "http://127.0.0.1" + addr
	}
	return "http://" + addr
}

func fetchJSON(client *http.Client, url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
