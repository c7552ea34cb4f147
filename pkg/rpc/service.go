// Package rpc exposes OU fitting as the gRPC service statarb.ou.Estimator
//
// 请求与应答均为 google.protobuf.Struct，字段约定见 pkg/wire
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName 完整服务名，同时用于健康检查
	ServiceName = "statarb.ou.Estimator"
	// FitMethod unary Fit 的完整方法名
	FitMethod = "/" + ServiceName + "/Fit"
)

// EstimatorServer is the server API for the Estimator service
type EstimatorServer interface {
	Fit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc 手写的服务描述（与 protoc-gen-go-grpc 生成的结构一致）
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EstimatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Fit",
			Handler:    fitHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "statarb/ou/estimator.proto",
}

// RegisterEstimatorServer registers srv on s
func RegisterEstimatorServer(s grpc.ServiceRegistrar, srv EstimatorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EstimatorServer).Fit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: FitMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EstimatorServer).Fit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
