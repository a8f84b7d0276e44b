package server

import (
	"context"

	"google.golang.org/grpc"

	"vestake/services/staking/wire"
)

// ServiceDesc registers StakingServer handlers under wire.ServiceName.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: wire.ServiceName,
	HandlerType: (*StakingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deposit", Handler: unary(wire.MethodDeposit, StakingServer.Deposit)},
		{MethodName: "Withdraw", Handler: unary(wire.MethodWithdraw, StakingServer.Withdraw)},
		{MethodName: "Claim", Handler: unary(wire.MethodClaim, StakingServer.Claim)},
		{MethodName: "UpdateRewardVars", Handler: unary(wire.MethodUpdateRewardVars, StakingServer.UpdateRewardVars)},
		{MethodName: "PendingReward", Handler: unary(wire.MethodPendingReward, StakingServer.PendingReward)},
		{MethodName: "GetUser", Handler: unary(wire.MethodGetUser, StakingServer.GetUser)},
		{MethodName: "GetLedger", Handler: unary(wire.MethodGetLedger, StakingServer.GetLedger)},
		{MethodName: "GetParams", Handler: unary(wire.MethodGetParams, StakingServer.GetParams)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    wire.EventStreamDesc.StreamName,
			ServerStreams: true,
			Handler:       streamEventsHandler,
		},
	},
	Metadata: "vestake/staking/v1",
}

// unary adapts a typed handler into the grpc.MethodDesc form, running the
// interceptor chain when one is installed.
func unary[Req any, Resp any](fullMethod string, call func(StakingServer, context.Context, *Req) (Resp, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StakingServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(StakingServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(wire.EventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(StakingServer).StreamEvents(in, stream)
}
