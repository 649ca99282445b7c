package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"duckreplay/player/internal/catalog"
	"duckreplay/player/internal/codec"
	"duckreplay/player/internal/config"
	"duckreplay/player/internal/events"
	grpcsvc "duckreplay/player/internal/grpc"
	"duckreplay/player/internal/live"
	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/playback"
	"duckreplay/player/internal/replay"
	"duckreplay/player/internal/session"
	"duckreplay/player/internal/simulation"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	listControls := flag.Bool("controls", false, "print the playback control RPCs as JSON and exit")
	flag.Parse()

	if *listControls {
		if err := writeControlDocs(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configure logging: %v\n", err)
		os.Exit(1)
	}
	logging.ReplaceGlobals(log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("replayd stopped", logging.Error(err))
	}
	log.Info("replayd stopped")
}

// run serves playback control until ctx is cancelled or a component fails.
func run(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	compressor, err := codec.ByName(cfg.Codec)
	if err != nil {
		return err
	}

	//1.- Notifications from the game go to a sequenced stream that watchers subscribe to.
	stream := events.NewStream(events.Config{Retain: cfg.Playback.EventRetention, Log: log})
	sess := session.New(log, playback.WithNotifier(stream))

	if cfg.ReplayPath != "" {
		raw, err := os.ReadFile(cfg.ReplayPath)
		if err != nil {
			return fmt.Errorf("read replay: %w", err)
		}
		if err := sess.Load(raw); err != nil {
			return fmt.Errorf("load %s: %w", cfg.ReplayPath, err)
		}
	}

	listener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Address, err)
	}
	server := grpc.NewServer(grpcsvc.ServerOptions(cfg.ControlSecret, log)...)
	grpcsvc.NewService(sess, stream, grpcsvc.WithCompressor(compressor), grpcsvc.WithLogger(log)).Register(server)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("playback control listening",
			logging.String("address", advertisedAddress(listener.Addr().String())),
			logging.String("codec", compressor.Name()),
			logging.Bool("secured", cfg.ControlSecret != ""))
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errs <- fmt.Errorf("serve: %w", err)
		}
	}()

	//2.- Autoplay drives the simulation clock of whichever match is current.
	var autoplay *simulation.Autoplay
	if cfg.Playback.Autoplay {
		autoplay = simulation.NewAutoplay(cfg.Playback.TickRate, cfg.Playback.TurnsPerSecond, advancer(sess), log)
		autoplay.Start(ctx)
	}

	//3.- Recording, indexing and retention only apply when a replay directory is set.
	var rec *recording
	var recorder *replay.Recorder
	if cfg.ReplayDir != "" {
		rec, err = startRecording(ctx, cfg, log, &wg)
		if err != nil {
			cancel()
			server.Stop()
			wg.Wait()
			return err
		}
		recorder = rec.recorder
	}

	//4.- Health, metrics and manual rolls are served over plain HTTP.
	src := opsSources{session: sess, stream: stream, record: rec, autoplay: autoplay}
	if err := startOps(ctx, cfg.Ops, src, log, &wg); err != nil {
		cancel()
		server.Stop()
		wg.Wait()
		return err
	}

	if cfg.LiveURL != "" {
		f := &feed{session: sess, recorder: recorder, now: time.Now, log: log}
		if cfg.RecordBundles && cfg.ReplayDir != "" {
			f.bundleDir = cfg.ReplayDir
		}
		client := live.NewClient(live.Config{URL: cfg.LiveURL}, f.handle, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer f.close()
			if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("live feed: %w", err)
				return
			}
			log.Info("live feed finished", logging.String("url", cfg.LiveURL))
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	//5.- Shut down in reverse order of startup.
	cancel()
	if autoplay != nil {
		autoplay.Stop()
	}
	server.GracefulStop()
	wg.Wait()
	return runErr
}

// advancer steps the current match, treating "nothing loaded yet" as idle rather than failure.
func advancer(sess *session.Session) simulation.Advancer {
	return func(updates float64) error {
		err := sess.DoMatch(func(m *playback.Match) error { return m.StepSimulation(updates) })
		if errors.Is(err, session.ErrNoGame) || errors.Is(err, playback.ErrNoMatch) {
			return nil
		}
		return err
	}
}

func startRecording(ctx context.Context, cfg *config.Config, log *logging.Logger, wg *sync.WaitGroup) (*recording, error) {
	recorder, err := replay.NewRecorder(cfg.ReplayDir, time.Now, log)
	if err != nil {
		return nil, fmt.Errorf("replay directory: %w", err)
	}

	if cfg.CatalogPath != "" {
		index, err := catalog.Open(cfg.CatalogPath, log)
		if err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		recorder.OnRoll(func(path string) {
			if _, err := index.IndexFile(ctx, path); err != nil {
				log.Warn("catalog index failed", logging.String("path", path), logging.Error(err))
			}
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { _ = index.Close() }()
			if _, err := index.Scan(ctx, cfg.ReplayDir); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("catalog scan failed", logging.Error(err))
			}
			<-ctx.Done()
		}()
	}

	policy := replay.RetentionPolicy{MaxGames: cfg.Retention.MaxMatches, MaxAge: cfg.Retention.MaxAge}
	cleaner := replay.NewCleaner(cfg.ReplayDir, policy, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleaner.Run(ctx, cfg.Retention.Interval)
	}()
	return &recording{recorder: recorder, cleaner: cleaner}, nil
}
