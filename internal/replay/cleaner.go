package replay

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"duckreplay/player/internal/logging"
)

// RetentionPolicy bounds how many recorded games stay on disk and for how long.
type RetentionPolicy struct {
	MaxGames int
	MaxAge   time.Duration
}

// StorageStats summarises the disk footprint of recorded games.
type StorageStats struct {
	Games     int
	Headers   int
	Bytes     int64
	Removed   int
	LastSweep time.Time
}

// Cleaner prunes recorded games according to a retention policy. A game is a replay file and
// its companion header, or a bundle directory. Files that are neither are never touched.
type Cleaner struct {
	mu     sync.RWMutex
	dir    string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
	stats  StorageStats
}

// NewCleaner constructs a cleaner for dir.
func NewCleaner(dir string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{dir: dir, policy: policy, log: logger, now: time.Now}
}

// Run sweeps once immediately and then every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.Sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Stats returns the statistics of the last sweep.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type recordedGame struct {
	name    string
	paths   []string
	headers []string
	size    int64
	modTime time.Time
}

// Sweep applies the retention policy once.
func (c *Cleaner) Sweep() {
	if c == nil || strings.TrimSpace(c.dir) == "" {
		return
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn("replay retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}
	games := c.collect(entries)
	now := c.now()
	stats := StorageStats{LastSweep: now}
	kept := 0
	for _, game := range games {
		remove, reason := c.shouldRemove(game, now, kept)
		if remove {
			err := c.remove(game)
			if err == nil {
				stats.Removed++
				c.log.Info("replay retention removed game", logging.String("game", game.name), logging.String("reason", reason))
				continue
			}
			//1.- A game that could not be removed still occupies a slot.
			c.log.Warn("replay retention removal failed", logging.Error(err), logging.String("game", game.name))
		}
		kept++
		stats.Games++
		stats.Headers += len(game.headers)
		stats.Bytes += game.size
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

// gameName maps a directory entry to the game it belongs to, or "" for unrelated files.
func gameName(dir string, entry os.DirEntry) (string, bool) {
	name := entry.Name()
	if entry.IsDir() {
		if _, err := os.Stat(filepath.Join(dir, name, manifestName)); err != nil {
			return "", false
		}
		return name, false
	}
	if strings.HasSuffix(name, HeaderSuffix) {
		return strings.TrimSuffix(name, HeaderSuffix), true
	}
	if strings.HasSuffix(name, Extension) {
		return strings.TrimSuffix(name, Extension), false
	}
	return "", false
}

func (c *Cleaner) collect(entries []os.DirEntry) []*recordedGame {
	games := make(map[string]*recordedGame, len(entries))
	for _, entry := range entries {
		name, isHeader := gameName(c.dir, entry)
		if name == "" {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			c.log.Warn("replay retention stat failed", logging.Error(err), logging.String("path", path))
			continue
		}
		size := info.Size()
		if entry.IsDir() {
			if size, err = directorySize(path); err != nil {
				c.log.Warn("replay retention size failed", logging.Error(err), logging.String("path", path))
				continue
			}
		}
		game := games[name]
		if game == nil {
			game = &recordedGame{name: name, modTime: info.ModTime()}
			games[name] = game
		}
		if info.ModTime().After(game.modTime) {
			game.modTime = info.ModTime()
		}
		if isHeader {
			game.headers = append(game.headers, path)
		} else {
			game.paths = append(game.paths, path)
		}
		game.size += size
	}
	list := make([]*recordedGame, 0, len(games))
	for _, game := range games {
		list = append(list, game)
	}
	//1.- Newest first, names break ties so sweeps are deterministic.
	sort.Slice(list, func(i, j int) bool {
		if list[i].modTime.Equal(list[j].modTime) {
			return list[i].name > list[j].name
		}
		return list[i].modTime.After(list[j].modTime)
	})
	return list
}

func (c *Cleaner) shouldRemove(game *recordedGame, now time.Time, kept int) (bool, string) {
	reasons := make([]string, 0, 2)
	if c.policy.MaxAge > 0 && now.Sub(game.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxGames > 0 && kept >= c.policy.MaxGames {
		reasons = append(reasons, fmt.Sprintf(">=%d games", c.policy.MaxGames))
	}
	return len(reasons) > 0, strings.Join(reasons, ", ")
}

func (c *Cleaner) remove(game *recordedGame) error {
	var errs error
	for _, path := range append(append([]string(nil), game.paths...), game.headers...) {
		//1.- RemoveAll covers bundles and tolerates entries that vanished since the scan.
		if err := os.RemoveAll(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func directorySize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
