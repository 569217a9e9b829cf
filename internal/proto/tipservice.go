// Package proto defines the TipService gRPC contract. Requests and responses
// are google.protobuf.Struct values keyed by snake_case field names.
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tipbot.service.TipService"

// Method names.
const (
	MethodPing             = "Ping"
	MethodInitializeMaster = "InitializeMaster"
	MethodRegister         = "Register"
	MethodRegisterExternal = "RegisterExternal"
	MethodTip              = "Tip"
	MethodBalance          = "Balance"
	MethodDeposit          = "Deposit"
	MethodWithdraw         = "Withdraw"
	MethodReconcile        = "Reconcile"
)

// FullMethod returns the "/service/method" path for name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// TipServiceServer is the server API for TipService.
type TipServiceServer interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InitializeMaster(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RegisterExternal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Tip(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Balance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Deposit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Withdraw(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reconcile(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(TipServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodDesc(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TipServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(TipServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// TipServiceDesc describes TipService for grpc.Server.RegisterService.
var TipServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TipServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc(MethodPing, TipServiceServer.Ping),
		methodDesc(MethodInitializeMaster, TipServiceServer.InitializeMaster),
		methodDesc(MethodRegister, TipServiceServer.Register),
		methodDesc(MethodRegisterExternal, TipServiceServer.RegisterExternal),
		methodDesc(MethodTip, TipServiceServer.Tip),
		methodDesc(MethodBalance, TipServiceServer.Balance),
		methodDesc(MethodDeposit, TipServiceServer.Deposit),
		methodDesc(MethodWithdraw, TipServiceServer.Withdraw),
		methodDesc(MethodReconcile, TipServiceServer.Reconcile),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tipbot/service.proto",
}

// RegisterTipServiceServer registers srv on s.
func RegisterTipServiceServer(s grpc.ServiceRegistrar, srv TipServiceServer) {
	s.RegisterService(&TipServiceDesc, srv)
}

// TipServiceClient calls TipService methods with plain maps.
type TipServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTipServiceClient wraps cc.
func NewTipServiceClient(cc grpc.ClientConnInterface) *TipServiceClient {
	return &TipServiceClient{cc: cc}
}

// Call invokes method with req and returns the response fields.
func (c *TipServiceClient) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
