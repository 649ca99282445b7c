// Package codec wraps the compression formats replay files may arrive in.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ErrUnknownFormat reports a payload whose magic bytes match no supported codec.
var ErrUnknownFormat = errors.New("unknown compression format")

// Compressor applies symmetric compression to payload byte slices.
type Compressor interface {
	//1.- Name returns the codec identifier used in file extensions and RPC metadata.
	Name() string
	//2.- Compress encodes the provided payload into a compressed representation.
	Compress(data []byte) ([]byte, error)
	//3.- Decompress restores the original payload from its compressed form.
	Decompress(data []byte) ([]byte, error)
}

var (
	gzipMagic   = []byte{0x1f, 0x8b}
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")
)

// Gzip is the default container for replay files.
func Gzip() Compressor { return gzipCompressor{} }

// Zstd compresses bundles written by the recorder.
func Zstd() Compressor { return zstdCompressor{} }

// Snappy uses the framed snappy stream format.
func Snappy() Compressor { return snappyCompressor{} }

// ByName resolves a compressor from its identifier.
func ByName(name string) (Compressor, error) {
	switch name {
	case "gzip", "gz":
		return Gzip(), nil
	case "zstd", "zst":
		return Zstd(), nil
	case "snappy", "sz":
		return Snappy(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// Detect picks the compressor whose magic prefix matches data.
func Detect(data []byte) (Compressor, error) {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return Gzip(), nil
	case bytes.HasPrefix(data, zstdMagic):
		return Zstd(), nil
	case bytes.HasPrefix(data, snappyMagic):
		return Snappy(), nil
	default:
		return nil, ErrUnknownFormat
	}
}

// Unwrap decompresses data with whichever codec its header names.
func Unwrap(data []byte) ([]byte, error) {
	c, err := Detect(data)
	if err != nil {
		return nil, err
	}
	return c.Decompress(data)
}

type gzipCompressor struct{}

func (gzipCompressor) Name() string { return "gzip" }

func (gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func (gzipCompressor) Decompress(data []byte) ([]byte, error) {
	//1.- Guard against nil payloads to simplify caller logic.
	if len(data) == 0 {
		return nil, fmt.Errorf("gzip decompress: empty payload")
	}
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer reader.Close()
	//2.- Copy the uncompressed bytes into a buffer for the caller.
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip copy: %w", err)
	}
	return out, nil
}

type zstdCompressor struct{}

func (zstdCompressor) Name() string { return "zstd" }

func (zstdCompressor) Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

func (zstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("zstd decompress: empty payload")
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

type snappyCompressor struct{}

func (snappyCompressor) Name() string { return "snappy" }

func (snappyCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := snappy.NewBufferedWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("snappy write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("snappy close: %w", err)
	}
	return buf.Bytes(), nil
}

func (snappyCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("snappy decompress: empty payload")
	}
	out, err := io.ReadAll(snappy.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("snappy read: %w", err)
	}
	return out, nil
}
