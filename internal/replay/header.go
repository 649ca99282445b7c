package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"duckreplay/player/internal/schema"
)

// HeaderSchemaVersion tracks the layout of header documents.
const HeaderSchemaVersion = 1

// HeaderSuffix names the companion header written next to a replay file.
const HeaderSuffix = ".header.json"

// Header is the metadata stored next to a recorded game so catalog tools can list it
// without decoding the replay.
type Header struct {
	SchemaVersion int      `json:"schema_version"`
	SpecVersion   string   `json:"spec_version"`
	Teams         []string `json:"teams"`
	Maps          []string `json:"maps,omitempty"`
	Rounds        int      `json:"rounds"`
	Winner        string   `json:"winner,omitempty"`
	FilePointer   string   `json:"file_pointer"`
}

// HeaderFor summarises the recorded events of one game.
func HeaderFor(events []schema.Event, pointer string) Header {
	header := Header{SchemaVersion: HeaderSchemaVersion, FilePointer: pointer}
	var teams []schema.TeamData
	for _, event := range events {
		switch e := event.(type) {
		case *schema.GameHeader:
			header.SpecVersion = e.SpecVersion
			teams = e.Teams
			for _, t := range e.Teams {
				header.Teams = append(header.Teams, t.Name)
			}
		case *schema.MatchHeader:
			if e.Map != nil {
				header.Maps = append(header.Maps, e.Map.Name)
			}
		case *schema.Round:
			header.Rounds++
		case *schema.GameFooter:
			for _, t := range teams {
				if int32(t.TeamID) == e.Winner {
					header.Winner = t.Name
				}
			}
		}
	}
	return header
}

// Validate ensures the header contains enough information for catalogue tooling.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return errors.New("schema_version must be positive")
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		return errors.New("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists the supplied header to path.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	//1.- Terminate with a newline so POSIX tooling can append easily.
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and validates a header document.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := header.Validate(); err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return header, nil
}
