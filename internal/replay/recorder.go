package replay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"duckreplay/player/internal/codec"
	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/schema"
)

// Extension is the file extension of recorded replay files.
const Extension = ".bc24"

var fileNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// ErrNothingRecorded is returned by Roll when no event was buffered.
var ErrNothingRecorded = errors.New("no replay events buffered")

// Recorder buffers the events of a streamed game and writes them out as a replay file that
// playback.LoadFullGameRaw accepts. A game footer rolls the file automatically.
type Recorder struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	log         *logging.Logger
	events      []schema.Event
	gameID      string
	rolls       int64
	lastRoll    time.Time
	lastRollURI string
	onRoll      func(path string)
}

// Stats summarises recorder health.
type Stats struct {
	BufferedEvents int
	Rolls          int64
	LastRollURI    string
	LastRollTime   time.Time
}

// NewRecorder writes replay files into dir.
func NewRecorder(dir string, clock func() time.Time, log *logging.Logger) (*Recorder, error) {
	if dir == "" {
		return nil, errors.New("replay directory must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logging.L()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{dir: dir, now: clock, log: log}, nil
}

// OnRoll registers a callback invoked with the path of every written replay.
func (r *Recorder) OnRoll(fn func(path string)) {
	r.mu.Lock()
	r.onRoll = fn
	r.mu.Unlock()
}

// Record buffers one event. A game header starts a new buffer, discarding an unfinished one;
// a game footer writes the buffer out.
func (r *Recorder) Record(event schema.Event) error {
	r.mu.Lock()
	if _, ok := event.(*schema.GameHeader); ok {
		if len(r.events) > 0 {
			r.log.Warn("discarding unfinished recording", logging.Int("events", len(r.events)))
		}
		r.events = nil
		r.gameID = fmt.Sprintf("game-%d", r.rolls+1)
	}
	r.events = append(r.events, event)
	_, finished := event.(*schema.GameFooter)
	r.mu.Unlock()

	if !finished {
		return nil
	}
	_, err := r.Roll("")
	return err
}

// Roll writes the buffered events to a gzip replay file plus its companion header and clears
// the buffer. An empty name uses the recorder's own game counter.
func (r *Recorder) Roll(name string) (string, error) {
	r.mu.Lock()
	if len(r.events) == 0 {
		r.mu.Unlock()
		return "", ErrNothingRecorded
	}
	if name == "" {
		name = r.gameID
	}
	cleaned := fileNameCleaner.ReplaceAllString(name, "")
	if cleaned == "" {
		cleaned = "game"
	}
	base := fmt.Sprintf("%s-%s", cleaned, r.now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(r.dir, base+Extension)

	//1.- Encode and compress the whole game, exactly as a match server writes it.
	events := r.events
	raw, err := codec.Gzip().Compress(schema.EncodeGameWrapper(&schema.GameWrapper{Events: events}))
	if err != nil {
		r.mu.Unlock()
		return "", fmt.Errorf("compress replay: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		r.mu.Unlock()
		return "", err
	}
	header := HeaderFor(events, filepath.Base(path))
	if err := WriteHeader(filepath.Join(r.dir, base+HeaderSuffix), header); err != nil {
		r.mu.Unlock()
		return "", err
	}

	//2.- Reset the buffer so the next game can begin immediately.
	r.events = nil
	r.rolls++
	r.lastRoll = r.now().UTC()
	r.lastRollURI = path
	onRoll := r.onRoll
	r.mu.Unlock()

	r.log.Info("replay written",
		logging.String("path", path),
		logging.Int("rounds", header.Rounds),
		logging.Int("bytes", len(raw)))
	if onRoll != nil {
		onRoll(path)
	}
	return path, nil
}

// Snapshot returns statistics describing the recorder state.
func (r *Recorder) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		BufferedEvents: len(r.events),
		Rolls:          r.rolls,
		LastRollURI:    r.lastRollURI,
		LastRollTime:   r.lastRoll,
	}
}
