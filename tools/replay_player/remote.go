package replayplayer

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	grpcsvc "duckreplay/player/internal/grpc"
)

// Remote drives the match shown by a running replayd.
type Remote struct {
	conn   *grpc.ClientConn
	client *grpcsvc.Client
	secret string
}

// Dial connects to a replayd control address. The secret is sent with every call when set.
func Dial(address, secret string) (*Remote, error) {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return &Remote{conn: conn, client: grpcsvc.NewClient(conn), secret: secret}, nil
}

// Close releases the connection.
func (r *Remote) Close() error { return r.conn.Close() }

// Show seeks to turn when it is not negative, otherwise steps by delta when it is not zero,
// and returns the resulting description of the shown match.
func (r *Remote) Show(ctx context.Context, turn, delta int) (map[string]any, error) {
	if r.secret != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, grpcsvc.SecretMetadataKey, r.secret)
	}
	var err error
	var described *structpb.Struct
	switch {
	case turn >= 0:
		described, err = r.client.JumpToTurn(ctx, turn)
	case delta != 0:
		described, err = r.client.StepTurn(ctx, delta)
	default:
		described, err = r.client.Describe(ctx)
	}
	if err != nil {
		return nil, err
	}
	return described.AsMap(), nil
}
