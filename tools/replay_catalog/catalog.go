// Package replaycatalog lists recorded replays from their header files and from the sqlite
// catalog.
package replaycatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"duckreplay/player/internal/catalog"
	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/replay"
)

// Entry captures a replay header alongside its resolved artefact path.
type Entry struct {
	HeaderPath string        `json:"header_path"`
	ReplayPath string        `json:"replay_path"`
	Header     replay.Header `json:"header"`
}

// List walks the directory tree and returns parsed replay headers, without decoding replays.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if name != "header.json" && !strings.HasSuffix(name, replay.HeaderSuffix) {
			return nil
		}
		header, err := replay.ReadHeader(path)
		if err != nil {
			return err
		}
		replayPath := header.FilePointer
		if !filepath.IsAbs(replayPath) {
			replayPath = filepath.Join(filepath.Dir(path), replayPath)
		}
		entries = append(entries, Entry{HeaderPath: path, ReplayPath: replayPath, Header: header})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ReplayPath < entries[j].ReplayPath })
	return entries, nil
}

// MarshalEntries produces a stable JSON representation of the entries for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}

// Index scans dir into the catalog at dbPath and returns every indexed game.
func Index(ctx context.Context, dbPath, dir string, log *logging.Logger) (catalog.ScanResult, []catalog.Game, error) {
	c, err := catalog.Open(dbPath, log)
	if err != nil {
		return catalog.ScanResult{}, nil, err
	}
	defer c.Close()
	result, err := c.Scan(ctx, dir)
	if err != nil {
		return result, nil, err
	}
	games, err := c.Games(ctx)
	return result, games, err
}

// PrintGames writes a human readable listing of games.
func PrintGames(w io.Writer, games []catalog.Game) {
	for _, g := range games {
		fmt.Fprintf(w, "%s\n", g.Path)
		fmt.Fprintf(w, "  teams: %s\n", strings.Join(g.Teams, " vs "))
		if g.Winner != "" {
			fmt.Fprintf(w, "  winner: %s\n", g.Winner)
		}
		fmt.Fprintf(w, "  matches: %d (spec %s)\n", g.MatchCount, g.SpecVersion)
	}
}
