package replay

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"duckreplay/player/internal/schema"
)

const (
	// BundleVersion tracks the layout of bundle directories.
	BundleVersion = 1

	manifestName = "manifest.json"
	indexName    = "events.jsonl.sz"
	framesName   = "frames.bin.zst"
	headerName   = "header.json"
)

// ErrWriterClosed is returned when appending to a closed bundle writer.
var ErrWriterClosed = errors.New("bundle writer closed")

// IndexRecord is one line of the snappy event index; Offset locates the frame in the
// decompressed frame stream.
type IndexRecord struct {
	Sequence   int    `json:"seq"`
	Type       string `json:"type"`
	Round      int32  `json:"round,omitempty"`
	Offset     int64  `json:"offset"`
	Size       int    `json:"size"`
	CapturedAt string `json:"captured_at"`
}

// Manifest describes the bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version    int    `json:"version"`
	CreatedAt  string `json:"created_at"`
	IndexPath  string `json:"index_path"`
	FramesPath string `json:"frames_path"`
	HeaderPath string `json:"header_path"`
}

// Writer streams a game into a bundle directory: every event is appended as a length-prefixed
// flatbuffers frame to a zstd stream and described by one JSON line in a snappy index.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	indexFile   *os.File
	indexStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	offset      int64
	events      []schema.Event
	closed      bool
}

// NewWriter prepares the bundle directory under root and opens the compressed sinks.
func NewWriter(root, name string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("bundle root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	cleaned := fileNameCleaner.ReplaceAllString(name, "")
	if cleaned == "" {
		cleaned = "game"
	}
	created := clock().UTC()
	path := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	indexFile, err := os.Create(filepath.Join(path, indexName))
	if err != nil {
		return nil, Manifest{}, err
	}
	frameFile, err := os.Create(filepath.Join(path, framesName))
	if err != nil {
		indexFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		indexFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:    BundleVersion,
		CreatedAt:  created.Format(time.RFC3339Nano),
		IndexPath:  indexName,
		FramesPath: framesName,
		HeaderPath: headerName,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(path, manifestName), data, 0o644)
	}
	if err != nil {
		frameStream.Close()
		frameFile.Close()
		indexFile.Close()
		return nil, Manifest{}, err
	}

	return &Writer{
		dir:         path,
		now:         clock,
		indexFile:   indexFile,
		indexStream: snappy.NewBufferedWriter(indexFile),
		frameFile:   frameFile,
		frameStream: frameStream,
	}, manifest, nil
}

// Directory exposes the directory backing the bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// Append writes one event to the bundle. It has the shape of a live sink.
func (w *Writer) Append(event schema.Event) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	payload := schema.EncodeEvent(event)
	captured := w.now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}

	//1.- Write the frame first so the index never points past the end of the stream.
	prefix := make([]byte, 4)
	binary.LittleEndian.PutUint32(prefix, uint32(len(payload)))
	if _, err := w.frameStream.Write(prefix); err != nil {
		return err
	}
	if _, err := w.frameStream.Write(payload); err != nil {
		return err
	}

	//2.- Describe the frame in the index.
	record := IndexRecord{
		Sequence:   len(w.events),
		Type:       event.Type().String(),
		Offset:     w.offset,
		Size:       len(payload),
		CapturedAt: captured.Format(time.RFC3339Nano),
	}
	if round, ok := event.(*schema.Round); ok {
		record.Round = round.RoundID
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := w.indexStream.Write(append(line, '\n')); err != nil {
		return err
	}
	w.offset += int64(len(prefix) + len(payload))
	w.events = append(w.events, event)
	return w.indexStream.Flush()
}

// Close writes the bundle header and releases the file handles, surfacing the first failure.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	header := HeaderFor(w.events, manifestName)
	if err := WriteHeader(filepath.Join(w.dir, headerName), header); err != nil {
		firstErr = err
	}
	for _, closeFn := range []func() error{w.indexStream.Close, w.indexFile.Close, w.frameStream.Close, w.frameFile.Close} {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
