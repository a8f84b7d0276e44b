package client

import (
	"context"
	"errors"
	"io"

	"github.com/holiman/uint256"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"vestake/core"
	"vestake/core/events"
	"vestake/native/vestaking"
	"vestake/services/staking/wire"
)

// Client wraps the staking gRPC API.
type Client struct {
	conn  *grpc.ClientConn
	token string
}

// Dial connects to target. Without options the connection is plaintext.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(wire.CodecName)))
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// WithToken returns a copy that sends token as a bearer credential.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

func (c *Client) invoke(ctx context.Context, method string, req, reply any) error {
	return c.conn.Invoke(c.outgoing(ctx), method, req, reply)
}

func (c *Client) Deposit(ctx context.Context, amount *uint256.Int) (*vestaking.Settlement, error) {
	out := new(vestaking.Settlement)
	if err := c.invoke(ctx, wire.MethodDeposit, &wire.AmountRequest{Amount: amount.Dec()}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Withdraw(ctx context.Context, amount *uint256.Int) (*vestaking.Settlement, error) {
	out := new(vestaking.Settlement)
	if err := c.invoke(ctx, wire.MethodWithdraw, &wire.AmountRequest{Amount: amount.Dec()}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Claim(ctx context.Context) (*vestaking.Settlement, error) {
	out := new(vestaking.Settlement)
	if err := c.invoke(ctx, wire.MethodClaim, &wire.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateRewardVars(ctx context.Context) (*vestaking.GlobalState, error) {
	out := new(vestaking.GlobalState)
	if err := c.invoke(ctx, wire.MethodUpdateRewardVars, &wire.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PendingReward(ctx context.Context, account string) (*wire.PendingReply, error) {
	out := new(wire.PendingReply)
	if err := c.invoke(ctx, wire.MethodPendingReward, &wire.AccountRequest{Account: account}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetUser(ctx context.Context, account string) (*vestaking.UserInfo, error) {
	out := new(vestaking.UserInfo)
	if err := c.invoke(ctx, wire.MethodGetUser, &wire.AccountRequest{Account: account}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetLedger(ctx context.Context) (*core.LedgerView, error) {
	out := new(core.LedgerView)
	if err := c.invoke(ctx, wire.MethodGetLedger, &wire.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetParams(ctx context.Context) (*vestaking.Params, error) {
	out := new(vestaking.Params)
	if err := c.invoke(ctx, wire.MethodGetParams, &wire.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EventStream receives records from StreamEvents.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next record. It returns io.EOF when the server ends
// the stream cleanly.
func (s *EventStream) Recv() (events.Record, error) {
	var record events.Record
	if err := s.stream.RecvMsg(&record); err != nil {
		return events.Record{}, err
	}
	return record, nil
}

// StreamEvents opens an event feed. Cancel ctx to close it.
func (c *Client) StreamEvents(ctx context.Context, req wire.EventsRequest) (*EventStream, error) {
	stream, err := c.conn.NewStream(c.outgoing(ctx), &wire.EventStreamDesc, wire.MethodStreamEvents)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}
