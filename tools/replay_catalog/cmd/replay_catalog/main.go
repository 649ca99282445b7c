package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"duckreplay/player/internal/logging"
	"duckreplay/player/tools/replay_catalog"
)

func main() {
	root := flag.String("dir", ".", "directory containing replays")
	dbPath := flag.String("db", "", "sqlite catalog to update; empty lists header files only")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	if *dbPath == "" {
		entries, err := replaycatalog.List(*root)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if *jsonFlag {
			payload, err := replaycatalog.MarshalEntries(entries)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Println(string(payload))
			return
		}
		for _, entry := range entries {
			fmt.Printf("%s (%d rounds)\n", entry.ReplayPath, entry.Header.Rounds)
			if entry.Header.Winner != "" {
				fmt.Printf("  winner: %s\n", entry.Header.Winner)
			}
			fmt.Printf("  header: %s\n", entry.HeaderPath)
		}
		return
	}

	result, games, err := replaycatalog.Index(context.Background(), *dbPath, *root, logging.NewWriterLogger(os.Stderr))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "indexed %d, unchanged %d, failed %d, pruned %d\n",
		result.Indexed, result.Unchanged, result.Failed, result.Pruned)
	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(games); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	replaycatalog.PrintGames(os.Stdout, games)
}
