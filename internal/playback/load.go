package playback

import (
	"errors"
	"fmt"

	"duckreplay/player/internal/codec"
	"duckreplay/player/internal/gamemap"
	"duckreplay/player/internal/schema"
)

// ErrEmptyGame reports an empty replay file.
var ErrEmptyGame = errors.New("game file is empty")

// LoadFullGameRaw decompresses and decodes a complete replay file.
func LoadFullGameRaw(raw []byte, opts ...Option) (*Game, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyGame
	}
	data, err := codec.Unwrap(raw)
	if err != nil {
		return nil, fmt.Errorf("decompress replay: %w", err)
	}
	wrapper, err := schema.DecodeGameWrapper(data)
	if err != nil {
		return nil, fmt.Errorf("decode replay: %w", err)
	}
	return FromWrapper(wrapper, opts...)
}

// LoadMapFile opens a map file in a fresh editor game. Compressed map files are accepted too.
func LoadMapFile(raw []byte, opts ...Option) (*Game, *Match, error) {
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("%w: empty map file", gamemap.ErrInvalidMap)
	}
	if _, err := codec.Detect(raw); err == nil {
		if raw, err = codec.Unwrap(raw); err != nil {
			return nil, nil, fmt.Errorf("decompress map: %w", err)
		}
	}
	m, err := schema.DecodeGameMap(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode map: %w", err)
	}
	g := NewEditorGame(opts...)
	match, err := g.CreateMatchFromMap(m)
	if err != nil {
		return nil, nil, err
	}
	return g, match, nil
}

// ExportMap validates the map of turn and encodes it under name. It returns the file contents
// and the file name.
func ExportMap(turn *Turn, name string) ([]byte, string, error) {
	if err := gamemap.Validate(turn.Map, turn.Bodies.Len()); err != nil {
		return nil, "", err
	}
	named := turn.Map.Clone()
	named.Static = turn.Map.Static.WithName(name)
	data := schema.EncodeGameMap(gamemap.ToSchema(named, turn.Bodies.ToSpawnedBodyTable()))
	return data, name + gamemap.FileExtension, nil
}
