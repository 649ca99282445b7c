package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"duckreplay/player/internal/codec"
	"duckreplay/player/internal/schema"
)

// Client calls a remote playback service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func method(name string) string { return "/" + ServiceName + "/" + name }

// Describe fetches the state of the shown match.
func (c *Client) Describe(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method("Describe"), &structpb.Struct{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// JumpToTurn seeks the shown match to turn.
func (c *Client) JumpToTurn(ctx context.Context, turn int) (*structpb.Struct, error) {
	return c.invokeStruct(ctx, "JumpToTurn", map[string]any{"turn": turn})
}

// StepTurn moves the shown match by delta turns.
func (c *Client) StepTurn(ctx context.Context, delta int) (*structpb.Struct, error) {
	return c.invokeStruct(ctx, "StepTurn", map[string]any{"delta": delta})
}

func (c *Client) invokeStruct(ctx context.Context, name string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method(name), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchRound downloads and decodes the delta of turn n.
func (c *Client) FetchRound(ctx context.Context, n int32) (*schema.Round, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, method("FetchRound"), wrapperspb.Int32(n), out); err != nil {
		return nil, err
	}
	raw, err := codec.Unwrap(out.GetValue())
	if err != nil {
		return nil, fmt.Errorf("decompress round: %w", err)
	}
	event, err := schema.DecodeEvent(raw)
	if err != nil {
		return nil, fmt.Errorf("decode round: %w", err)
	}
	round, ok := event.(*schema.Round)
	if !ok {
		return nil, fmt.Errorf("%w: expected a round, got %s", schema.ErrMalformed, event.Type())
	}
	return round, nil
}

// WatchTurns opens the notification stream for subscriber.
func (c *Client) WatchTurns(ctx context.Context, subscriber string) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], method("WatchTurns"))
	if err != nil {
		return nil, err
	}
	watcher := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	req, err := structpb.NewStruct(map[string]any{"subscriber": subscriber})
	if err != nil {
		return nil, err
	}
	if err := watcher.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := watcher.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return watcher, nil
}
