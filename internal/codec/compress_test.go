package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestRoundTripAllCodecs(t *testing.T) {
	payload := bytes.Repeat([]byte("duck replay "), 64)
	for _, c := range []Compressor{Gzip(), Zstd(), Snappy()} {
		compressed, err := c.Compress(payload)
		if err != nil {
			t.Fatalf("%s compress: %v", c.Name(), err)
		}
		if len(compressed) == 0 {
			t.Fatalf("%s compressed payload empty", c.Name())
		}
		detected, err := Detect(compressed)
		if err != nil {
			t.Fatalf("%s detect: %v", c.Name(), err)
		}
		if detected.Name() != c.Name() {
			t.Fatalf("detected %s, want %s", detected.Name(), c.Name())
		}
		restored, err := Unwrap(compressed)
		if err != nil {
			t.Fatalf("%s unwrap: %v", c.Name(), err)
		}
		if !bytes.Equal(restored, payload) {
			t.Fatalf("%s round trip mismatch", c.Name())
		}
	}
}

func TestDetectUnknown(t *testing.T) {
	if _, err := Detect([]byte("plain")); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	if _, err := ByName("lzma"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestDecompressEmpty(t *testing.T) {
	if _, err := Gzip().Decompress(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
