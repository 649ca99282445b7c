package main

import (
	"encoding/json"
	"io"
	"sort"

	grpcsvc "duckreplay/player/internal/grpc"
)

// ControlDoc describes one playback control RPC for operators and client authors.
type ControlDoc struct {
	Method      string `json:"method"`
	Streaming   bool   `json:"streaming,omitempty"`
	Request     string `json:"request"`
	Description string `json:"description"`
}

var defaultControlDocs = []ControlDoc{
	{
		Method:      "Describe",
		Request:     "{}",
		Description: "Report the loaded game, the current match and the turn it shows.",
	},
	{
		Method:      "JumpToTurn",
		Request:     `{"turn": n, "rerender": true}`,
		Description: "Seek the current match to turn n, clamped to the recorded turns.",
	},
	{
		Method:      "StepTurn",
		Request:     `{"delta": 1, "rerender": true}`,
		Description: "Move the current match forward or backward by delta turns.",
	},
	{
		Method:      "FetchRound",
		Request:     "Int32Value round",
		Description: "Return the raw delta of a round, compressed with the configured codec.",
	},
	{
		Method:      "WatchTurns",
		Streaming:   true,
		Request:     `{"subscriber": "id"}`,
		Description: "Stream turn progress and render notifications, resending unacknowledged ones on reconnect.",
	},
}

// controlDocs returns the documented RPCs sorted by method, with fully qualified names.
func controlDocs() []ControlDoc {
	docs := append([]ControlDoc(nil), defaultControlDocs...)
	for i := range docs {
		docs[i].Method = "/" + grpcsvc.ServiceName + "/" + docs[i].Method
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Method < docs[j].Method })
	return docs
}

func writeControlDocs(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(controlDocs())
}
