package replay

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"duckreplay/player/internal/schema"
)

// Entry is one decoded bundle frame together with its index line.
type Entry struct {
	Record IndexRecord
	Event  schema.Event
}

// Loader rehydrates a bundle written by Writer.
type Loader struct {
	manifest Manifest
	header   Header
	entries  []Entry
}

// LoadBundle reads the bundle stored in dir and checks every frame against its index line.
func LoadBundle(dir string) (*Loader, error) {
	if dir == "" {
		return nil, fmt.Errorf("bundle directory must be provided")
	}
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.Version != BundleVersion {
		return nil, fmt.Errorf("unsupported bundle version %d", manifest.Version)
	}

	records, err := readIndex(filepath.Join(dir, manifest.IndexPath))
	if err != nil {
		return nil, err
	}
	frames, err := readFrames(filepath.Join(dir, manifest.FramesPath))
	if err != nil {
		return nil, err
	}

	//1.- Every indexed frame must exist at its recorded offset; trailing unindexed frames are
	// left over from an interrupted write and ignored.
	entries := make([]Entry, 0, len(records))
	for i, record := range records {
		if record.Offset < 0 || record.Offset+4+int64(record.Size) > int64(len(frames)) {
			return nil, fmt.Errorf("index line %d points outside the frame stream", i)
		}
		size := binary.LittleEndian.Uint32(frames[record.Offset:])
		if int(size) != record.Size {
			return nil, fmt.Errorf("index line %d: frame size %d, expected %d", i, size, record.Size)
		}
		start := record.Offset + 4
		event, err := schema.DecodeEvent(frames[start : start+int64(size)])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if event.Type().String() != record.Type {
			return nil, fmt.Errorf("frame %d is %s, index says %s", i, event.Type(), record.Type)
		}
		entries = append(entries, Entry{Record: record, Event: event})
	}

	loader := &Loader{manifest: manifest, entries: entries}
	//2.- The header is absent while a bundle is still being written.
	if header, err := ReadHeader(filepath.Join(dir, manifest.HeaderPath)); err == nil {
		loader.header = header
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return loader, nil
}

func readIndex(path string) ([]IndexRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []IndexRecord
	scanner := bufio.NewScanner(snappy.NewReader(file))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record IndexRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("parse index line %d: %w", len(records), err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return records, nil
}

func readFrames(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}
	return data, nil
}

// Manifest returns the bundle manifest.
func (l *Loader) Manifest() Manifest { return l.manifest }

// Header returns the bundle header, zero when the bundle was never closed.
func (l *Loader) Header() Header { return l.header }

// Entries exposes a copy of the loaded frames.
func (l *Loader) Entries() []Entry {
	if l == nil {
		return nil
	}
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Events returns the decoded events in recorded order.
func (l *Loader) Events() []schema.Event {
	if l == nil {
		return nil
	}
	events := make([]schema.Event, len(l.entries))
	for i, entry := range l.entries {
		events[i] = entry.Event
	}
	return events
}

// Wrapper assembles the events into a game container for playback.FromWrapper.
func (l *Loader) Wrapper() *schema.GameWrapper {
	events := l.Events()
	headers, footers := schema.EventIndices(events)
	return &schema.GameWrapper{Events: events, MatchHeaders: headers, MatchFooters: footers}
}

// Replay hands every event to apply in order, stopping at the first error.
func (l *Loader) Replay(apply func(schema.Event) error) error {
	if l == nil {
		return fmt.Errorf("loader not initialised")
	}
	if apply == nil {
		return fmt.Errorf("replay callback must be provided")
	}
	for _, entry := range l.entries {
		if err := apply(entry.Event); err != nil {
			return err
		}
	}
	return nil
}
