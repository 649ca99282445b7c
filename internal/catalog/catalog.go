// Package catalog indexes replay files into a sqlite database so tournament tooling can list
// games and matches without loading them.
package catalog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"duckreplay/player/internal/codec"
	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/schema"
)

// Extension selects the files Scan indexes.
const Extension = ".bc24"

// Game is one indexed replay file.
type Game struct {
	Path        string
	Digest      string
	Size        int64
	ModTime     time.Time
	SpecVersion string
	Teams       []string
	Winner      string
	MatchCount  int
	IndexedAt   time.Time
}

// ScanResult counts what a Scan did.
type ScanResult struct {
	Indexed   int
	Unchanged int
	Failed    int
	Pruned    int
}

// Catalog is a sqlite index of replay files.
type Catalog struct {
	db  *sql.DB
	log *logging.Logger
	now func() time.Time
}

// Open opens or creates the catalog database at path.
func Open(path string, log *logging.Logger) (*Catalog, error) {
	if path == "" {
		return nil, fmt.Errorf("empty catalog path")
	}
	if log == nil {
		log = logging.L()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Catalog{db: db, log: log, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS games (
			path TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			size INTEGER NOT NULL,
			mod_time INTEGER NOT NULL,
			spec_version TEXT NOT NULL,
			teams TEXT NOT NULL,
			winner TEXT NOT NULL,
			match_count INTEGER NOT NULL,
			indexed_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS matches (
			path TEXT NOT NULL REFERENCES games(path) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			map TEXT NOT NULL,
			max_rounds INTEGER NOT NULL,
			rounds INTEGER NOT NULL,
			winner TEXT NOT NULL,
			PRIMARY KEY (path, idx)
		);`,
		`CREATE INDEX IF NOT EXISTS matches_map ON matches(map);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// IndexFile decodes the replay at path and stores its summary, replacing an earlier row.
func (c *Catalog) IndexFile(ctx context.Context, path string) (GameSummary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return GameSummary{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return GameSummary{}, err
	}
	data, err := codec.Unwrap(raw)
	if err != nil {
		return GameSummary{}, fmt.Errorf("%s: %w", path, err)
	}
	wrapper, err := schema.DecodeGameWrapper(data)
	if err != nil {
		return GameSummary{}, fmt.Errorf("%s: %w", path, err)
	}
	summary, err := Summarize(wrapper)
	if err != nil {
		return GameSummary{}, fmt.Errorf("%s: %w", path, err)
	}
	sum := sha256.Sum256(raw)
	game := Game{
		Path:        path,
		Digest:      hex.EncodeToString(sum[:]),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		SpecVersion: summary.SpecVersion,
		Teams:       summary.Teams,
		Winner:      summary.Winner,
		MatchCount:  len(summary.Matches),
		IndexedAt:   c.now(),
	}
	if err := c.store(ctx, game, summary.Matches); err != nil {
		return GameSummary{}, err
	}
	return summary, nil
}

func (c *Catalog) store(ctx context.Context, game Game, matches []MatchSummary) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	//1.- Replace the game row; the cascade drops its old matches.
	if _, err := tx.ExecContext(ctx, `DELETE FROM games WHERE path = ?`, game.Path); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO games
		(path, digest, size, mod_time, spec_version, teams, winner, match_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		game.Path, game.Digest, game.Size, game.ModTime.UnixNano(), game.SpecVersion,
		strings.Join(game.Teams, ","), game.Winner, game.MatchCount, game.IndexedAt.UnixNano())
	if err != nil {
		return err
	}
	//2.- Insert one row per match.
	for _, m := range matches {
		_, err := tx.ExecContext(ctx, `INSERT INTO matches (path, idx, map, max_rounds, rounds, winner)
			VALUES (?, ?, ?, ?, ?, ?)`, game.Path, m.Index, m.Map, m.MaxRounds, m.Rounds, m.Winner)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Scan indexes every replay file under dir whose size or modification time changed since
// the last scan and prunes rows of files that no longer exist. Undecodable files are logged
// and counted, never fatal.
func (c *Catalog) Scan(ctx context.Context, dir string) (ScanResult, error) {
	var result ScanResult
	known, err := c.fingerprints(ctx)
	if err != nil {
		return result, err
	}
	seen := make(map[string]bool)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), Extension) {
			return nil
		}
		seen[path] = true
		info, err := d.Info()
		if err != nil {
			return err
		}
		if fp, ok := known[path]; ok && fp.size == info.Size() && fp.modTime == info.ModTime().UnixNano() {
			result.Unchanged++
			return nil
		}
		if _, err := c.IndexFile(ctx, path); err != nil {
			result.Failed++
			c.log.Warn("catalog skipped replay", logging.String("path", path), logging.Error(err))
			return nil
		}
		result.Indexed++
		return nil
	})
	if err != nil {
		return result, err
	}

	for path := range known {
		if seen[path] || !strings.HasPrefix(path, filepath.Clean(dir)+string(filepath.Separator)) {
			continue
		}
		if _, err := c.db.ExecContext(ctx, `DELETE FROM games WHERE path = ?`, path); err != nil {
			return result, err
		}
		result.Pruned++
	}
	c.log.Info("catalog scan finished",
		logging.String("directory", dir),
		logging.Int("indexed", result.Indexed),
		logging.Int("unchanged", result.Unchanged),
		logging.Int("failed", result.Failed),
		logging.Int("pruned", result.Pruned))
	return result, nil
}

type fingerprint struct {
	size    int64
	modTime int64
}

func (c *Catalog) fingerprints(ctx context.Context) (map[string]fingerprint, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT path, size, mod_time FROM games`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]fingerprint)
	for rows.Next() {
		var path string
		var fp fingerprint
		if err := rows.Scan(&path, &fp.size, &fp.modTime); err != nil {
			return nil, err
		}
		out[path] = fp
	}
	return out, rows.Err()
}

// Games lists indexed games, newest file first.
func (c *Catalog) Games(ctx context.Context) ([]Game, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT path, digest, size, mod_time, spec_version, teams,
		winner, match_count, indexed_at FROM games ORDER BY mod_time DESC, path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var games []Game
	for rows.Next() {
		var g Game
		var teams string
		var modTime, indexedAt int64
		if err := rows.Scan(&g.Path, &g.Digest, &g.Size, &modTime, &g.SpecVersion, &teams,
			&g.Winner, &g.MatchCount, &indexedAt); err != nil {
			return nil, err
		}
		if teams != "" {
			g.Teams = strings.Split(teams, ",")
		}
		g.ModTime = time.Unix(0, modTime)
		g.IndexedAt = time.Unix(0, indexedAt)
		games = append(games, g)
	}
	return games, rows.Err()
}

// ErrUnknownGame is returned by Matches for a path that is not indexed.
var ErrUnknownGame = errors.New("game not indexed")

// Matches lists the matches of the game stored at path in match order.
func (c *Catalog) Matches(ctx context.Context, path string) ([]MatchSummary, error) {
	var count int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games WHERE path = ?`, path).Scan(&count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, path)
	}
	rows, err := c.db.QueryContext(ctx, `SELECT idx, map, max_rounds, rounds, winner FROM matches
		WHERE path = ? ORDER BY idx`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var matches []MatchSummary
	for rows.Next() {
		var m MatchSummary
		if err := rows.Scan(&m.Index, &m.Map, &m.MaxRounds, &m.Rounds, &m.Winner); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// MapWins counts match wins per team on the named map.
func (c *Catalog) MapWins(ctx context.Context, mapName string) (map[string]int, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT winner, COUNT(*) FROM matches
		WHERE map = ? AND winner != '' GROUP BY winner`, mapName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	wins := make(map[string]int)
	for rows.Next() {
		var winner string
		var n int
		if err := rows.Scan(&winner, &n); err != nil {
			return nil, err
		}
		wins[winner] = n
	}
	return wins, rows.Err()
}
