package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"duckreplay/player/internal/logging"
	"duckreplay/player/tools/map_check"
)

func main() {
	exportDir := flag.String("export", "", "re-export every valid map into this directory")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: map_check [-export dir] map24-file...")
		os.Exit(1)
	}
	log := logging.NewWriterLogger(os.Stderr)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	failed := false
	for _, path := range flag.Args() {
		report, err := mapcheck.CheckFile(path, log)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			failed = true
			continue
		}
		if err := enc.Encode(report); err != nil {
			fmt.Fprintln(os.Stderr, "encode error:", err)
			os.Exit(3)
		}
		if !report.Valid {
			failed = true
			continue
		}
		if *exportDir != "" {
			raw, err := os.ReadFile(path)
			if err == nil {
				_, err = mapcheck.Normalize(raw, *exportDir, report.Name, log)
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, "export:", err)
				failed = true
			}
		}
	}
	if failed {
		os.Exit(2)
	}
}
