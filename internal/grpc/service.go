// Package grpc exposes playback control over gRPC. Messages are well-known protobuf types
// (Struct, Int32Value, BytesValue), so the service needs no generated code.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"duckreplay/player/internal/codec"
	"duckreplay/player/internal/events"
	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/playback"
	"duckreplay/player/internal/schema"
	"duckreplay/player/internal/session"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "replay.PlaybackService"

const (
	defaultWatchBuffer = 64
	// requestTimeout bounds unary calls that did not set a deadline.
	requestTimeout = 5 * time.Second
)

// Option customises the behaviour of the playback service.
type Option func(*Service)

// WithCompressor overrides the codec used for FetchRound payloads.
func WithCompressor(compressor codec.Compressor) Option {
	return func(s *Service) {
		if compressor != nil {
			s.compressor = compressor
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// Service implements the playback control RPCs on top of a session.
type Service struct {
	controller Controller
	watcher    Watcher
	compressor codec.Compressor
	log        *logging.Logger
}

// NewService wires the service to the shown game and its notification stream.
func NewService(controller Controller, watcher Watcher, opts ...Option) *Service {
	service := &Service{controller: controller, watcher: watcher, compressor: codec.Zstd(), log: logging.L()}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service
}

// Register attaches the service to a gRPC server.
func (s *Service) Register(server *grpc.Server) {
	server.RegisterService(&serviceDesc, s)
}

// Describe reports the shown game, match and turn.
func (s *Service) Describe(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.withMatch(ctx, func(*playback.Match) error { return nil })
}

// JumpToTurn seeks the shown match. The request carries "turn" and an optional "rerender".
func (s *Service) JumpToTurn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	turn, err := intField(req, "turn", nil)
	if err != nil {
		return nil, err
	}
	rerender := boolField(req, "rerender", true)
	return s.withMatch(ctx, func(m *playback.Match) error { return m.JumpToTurn(turn, rerender) })
}

// StepTurn moves the shown match by "delta" turns, one when omitted.
func (s *Service) StepTurn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	one := 1
	delta, err := intField(req, "delta", &one)
	if err != nil {
		return nil, err
	}
	rerender := boolField(req, "rerender", true)
	return s.withMatch(ctx, func(m *playback.Match) error { return m.StepTurn(delta, rerender) })
}

// FetchRound returns the recorded delta of one turn as a compressed event record.
func (s *Service) FetchRound(ctx context.Context, req *wrapperspb.Int32Value) (*wrapperspb.BytesValue, error) {
	var round *schema.Round
	err := s.controller.DoMatch(func(m *playback.Match) error {
		var err error
		round, err = m.Delta(int(req.GetValue()))
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}
	//1.- Deltas are immutable once recorded, so encoding happens outside the session lock.
	raw := schema.EncodeEvent(round)
	compressed, err := s.compressor.Compress(raw)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "compress round: %v", err)
	}
	logging.LoggerFromContext(ctx).Debug("round fetched",
		logging.Int("round", int(req.GetValue())),
		logging.String("codec", s.compressor.Name()),
		logging.Int("bytes", len(compressed)))
	return wrapperspb.Bytes(compressed), nil
}

// WatchTurns streams playback notifications to the caller. Each delivered envelope is
// acknowledged once sent, so a watcher reconnecting under the same "subscriber" name resumes
// after the last envelope it received.
func (s *Service) WatchTurns(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s.watcher == nil {
		return status.Error(codes.FailedPrecondition, "notifications unavailable")
	}
	subscriber := stringField(req, "subscriber")
	if subscriber == "" {
		return status.Error(codes.InvalidArgument, "subscriber must be provided")
	}
	ctx := stream.Context()
	sub, err := s.watcher.Subscribe(ctx, subscriber, defaultWatchBuffer)
	if err != nil {
		return status.Errorf(codes.FailedPrecondition, "subscribe: %v", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			//1.- Surface cancellation so clients can tell it apart from a closed stream.
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case env, ok := <-sub.Events():
			if !ok {
				return nil
			}
			msg, err := envelopeStruct(env)
			if err != nil {
				return status.Errorf(codes.Internal, "encode envelope: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
			if err := sub.Ack(env.Sequence); err != nil {
				return status.Errorf(codes.Internal, "ack: %v", err)
			}
		}
	}
}

func (s *Service) withMatch(ctx context.Context, fn func(m *playback.Match) error) (*structpb.Struct, error) {
	var fields map[string]any
	err := s.controller.DoMatch(func(m *playback.Match) error {
		if err := fn(m); err != nil {
			return err
		}
		fields = describe(m)
		return nil
	})
	if err != nil {
		logging.LoggerFromContext(ctx).Warn("playback request failed", logging.Error(err))
		return nil, toStatus(err)
	}
	return structpb.NewStruct(fields)
}

func describe(m *playback.Match) map[string]any {
	g := m.Game()
	teams := make([]any, 0, len(g.Teams))
	for _, t := range g.Teams {
		teams = append(teams, t.Name)
	}
	fields := map[string]any{
		"game_id":       g.ID,
		"playable":      g.Playable,
		"teams":         teams,
		"match":         m.Index(),
		"matches":       len(g.Matches),
		"map":           m.Static().Name,
		"turn":          m.CurrentTurn().Number,
		"max_turn":      m.MaxTurn(),
		"max_rounds":    int64(m.MaxRounds()),
		"interpolation": m.InterpolationFactor(),
	}
	if w := m.Winner(); w != nil {
		fields["winner"] = w.Name
	}
	return fields
}

func envelopeStruct(env *events.Envelope) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"sequence": float64(env.Sequence),
		"kind":     string(env.Kind),
		"game_id":  env.GameID,
		"match":    env.Match,
		"turn":     env.Turn,
	})
}

func intField(req *structpb.Struct, name string, fallback *int) (int, error) {
	value, ok := req.GetFields()[name]
	if !ok {
		if fallback != nil {
			return *fallback, nil
		}
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	number, ok := value.GetKind().(*structpb.Value_NumberValue)
	if !ok || number.NumberValue != float64(int(number.NumberValue)) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
	return int(number.NumberValue), nil
}

func boolField(req *structpb.Struct, name string, fallback bool) bool {
	value, ok := req.GetFields()[name]
	if !ok {
		return fallback
	}
	return value.GetBoolValue()
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

// toStatus maps playback errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, session.ErrNoGame), errors.Is(err, playback.ErrNoMatch), errors.Is(err, playback.ErrNotPlayable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, playback.ErrNoSuchTurn):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, playback.ErrMatchCorrupted):
		return status.Error(codes.DataLoss, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("playback: %v", err))
	}
}

// server is implemented by Service; the descriptor dispatches through it.
type server interface {
	Describe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	JumpToTurn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StepTurn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FetchRound(context.Context, *wrapperspb.Int32Value) (*wrapperspb.BytesValue, error)
	WatchTurns(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

var _ server = (*Service)(nil)

func structHandler(call func(server, context.Context, *structpb.Struct) (*structpb.Struct, error), method string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(server), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(server), ctx, req.(*structpb.Struct))
		})
	}
}

func fetchRoundHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(server).FetchRound(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/FetchRound"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(server).FetchRound(ctx, req.(*wrapperspb.Int32Value))
	})
}

func watchTurnsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(server).WatchTurns(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Describe", Handler: structHandler(server.Describe, "Describe")},
		{MethodName: "JumpToTurn", Handler: structHandler(server.JumpToTurn, "JumpToTurn")},
		{MethodName: "StepTurn", Handler: structHandler(server.StepTurn, "StepTurn")},
		{MethodName: "FetchRound", Handler: fetchRoundHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchTurns", Handler: watchTurnsHandler, ServerStreams: true},
	},
}
