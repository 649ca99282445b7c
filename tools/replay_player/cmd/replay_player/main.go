package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"duckreplay/player/internal/logging"
	"duckreplay/player/tools/replay_player"
)

func main() {
	path := flag.String("path", "", "replay file or bundle directory")
	match := flag.Int("match", 0, "match index to show")
	turn := flag.Int("turn", -1, "turn to seek to; negative seeks to the end")
	statsOut := flag.String("stats", "", "write per-turn stats of every match to this parquet file")
	remoteAddr := flag.String("remote", "", "drive a running replayd at this control address instead of a file")
	secret := flag.String("secret", "", "control secret of the remote replayd")
	step := flag.Int("step", 0, "with -remote and a negative -turn, step the shown match by this many turns")
	flag.Parse()

	if *remoteAddr != "" {
		showRemote(*remoteAddr, *secret, *turn, *step)
		return
	}
	if *path == "" {
		fmt.Fprintln(os.Stderr, "path or remote flag is required")
		os.Exit(1)
	}
	log := logging.NewWriterLogger(os.Stderr)

	game, err := replayplayer.Open(*path, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	m, err := replayplayer.Seek(game, *match, *turn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "seek:", err)
		os.Exit(2)
	}

	//1.- Render the shown turn as JSON so callers can pipe the output elsewhere.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(replayplayer.Summarize(m)); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}

	if *statsOut != "" {
		n, err := replayplayer.ExportStats(game, *statsOut)
		if err != nil {
			fmt.Fprintln(os.Stderr, "export stats:", err)
			os.Exit(3)
		}
		fmt.Fprintf(os.Stderr, "wrote %d stat rows to %s\n", n, *statsOut)
	}
}

func showRemote(address, secret string, turn, step int) {
	remote, err := replayplayer.Dial(address, secret)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	defer remote.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shown, err := remote.Show(ctx, turn, step)
	if err != nil {
		fmt.Fprintln(os.Stderr, "remote:", err)
		os.Exit(2)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(shown); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
}
